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

package engine

import "errors"

// The five error kinds from spec §7. Store and Config errors abort a tick;
// Decode and EstimatorInvalidInput errors are per-item and absorbed (logged,
// the offending item skipped); NotMaster is suppressed to debug since a
// follower attempting to publish is expected, not exceptional.
var (
	ErrStore                 = errors.New("engine: store error")
	ErrDecode                = errors.New("engine: decode error")
	ErrEstimatorInvalidInput = errors.New("engine: estimator rejected input")
	ErrNotMaster             = errors.New("engine: not master")
	ErrConfig                = errors.New("engine: invalid config")
)
