// Package evolve implements the genetic algorithm that evolves move traces
// against a grid.
//
// A run starts from InitialPopulation: four depth-first seeds (one per entry
// of search.SeedPreferences) followed by random traces of exactly N moves.
// Driver.Run then repeats, for the configured number of generations:
//
//  1. Evaluate every member on its own grid clone and truncate it to the
//     path it actually executed.
//  2. Record max, min and average fitness.
//  3. Reserve copies of the two fittest members (first occurrence wins ties).
//  4. Pick two parents by fitness-proportionate sampling without replacement.
//  5. Cross them over at the first parent's midpoint.
//  6. Mutate every working member by inserting one random move.
//  7. Drop the two elites from the working population by index.
//  8. Cull two more, weighted towards low fitness.
//  9. Append the elites and both children.
//
// Every random draw comes from the *rand.Rand handed to the driver, so a run
// is reproducible from its seed regardless of how many evaluation workers
// are used. Members are removed by position, never by value, so duplicate
// genomes cannot change the population size.
package evolve
