// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package assoc implements the pairwise association likelihood: the
// zero-mean Gaussian density of the temporal residual between two
// observations projected into global time.
package assoc

import "math"

// Likelihood returns N(delta; 0, variance), the zero-mean Gaussian PDF of
// the residual delta = tgA - tgB with combined variance
// variance = offsetVarA + offsetVarB + covA + covB.
//
// Likelihood is symmetric in its construction (the caller computes delta
// from the two projected times) and finite for all finite inputs with
// variance > 0.
func Likelihood(delta, variance float64) float64 {
	if variance <= 0 {
		return 0
	}
	norm := 1.0 / math.Sqrt(2*math.Pi*variance)
	return norm * math.Exp(-(delta*delta)/(2*variance))
}

// Pairwise computes the association likelihood between two projected
// observations a and b given their combined variance components.
func Pairwise(tgA, varA float64, tgB, varB float64) float64 {
	delta := tgA - tgB
	return Likelihood(delta, varA+varB)
}

// BucketID is the optional prefilter from spec §4.2, kept alongside the
// kernel for callers that want to narrow candidate pairs before scoring
// them; it is never a hard matching decision.
func BucketID(localTimestamp float64, bucketMs int64) int64 {
	if bucketMs <= 0 {
		bucketMs = 100
	}
	return int64(math.Floor(localTimestamp * 1000.0 / float64(bucketMs)))
}
