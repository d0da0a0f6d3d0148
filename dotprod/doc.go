// Package dotprod finds pixels where cumulative flow reverses direction.
//
// The score of a pixel is the minimum dot product of its flow vector with
// those of its neighbours. Vectors are not normalized, so a reversal
// between two large opposing flows scores much lower than between small
// ones. Pixels with a strongly negative score are candidate divisions.
package dotprod
