// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package patch

import (
	"fmt"
	"strings"
)

// TargetNotFoundError reports targets that no candidate archive contained.
type TargetNotFoundError struct {
	Targets []string
	// Archives lists every archive consulted, in order.
	Archives []string
}

func (e *TargetNotFoundError) Error() string {
	archives := "none"
	if len(e.Archives) > 0 {
		archives = strings.Join(e.Archives, ", ")
	}
	return fmt.Sprintf("target classes not found: %s (searched: %s)", strings.Join(e.Targets, ", "), archives)
}

// MethodNotFoundError reports a target class that lacks the method its rule
// edits.
type MethodNotFoundError struct {
	Class  string
	Method string
}

func (e *MethodNotFoundError) Error() string {
	return fmt.Sprintf("failed to patch %s: could not find method %s", e.Class, e.Method)
}

// PatternNotFoundError reports a method whose instructions do not have the
// shape its rule expects. This usually means the upstream library changed
// and the rule needs updating.
type PatternNotFoundError struct {
	Class  string
	Method string
	// Reason describes what was expected and what was found.
	Reason string
}

func (e *PatternNotFoundError) Error() string {
	return fmt.Sprintf("failed to patch %s: unexpected code in %s: %s", e.Class, e.Method, e.Reason)
}

// IOError reports a failure to read an archive or write the output.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// UnknownTargetError reports a requested target that has no rule.
type UnknownTargetError struct {
	Target string
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("no patch rule for target %s", e.Target)
}
