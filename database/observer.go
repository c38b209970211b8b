/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"sync"
	"time"
)

// Step names reported by Manager.
const (
	StepConnect              = "Connect To Database"
	StepExecuteScript        = "Execute Query"
	StepExecuteSQL           = "Execute SQL"
	StepReplaceValues        = "Replace Values And Execute Query"
	StepExecuteByEnvironment = "Execute Environment-Specific Query"
	StepReplaceByEnvironment = "Replace Values in Environment-Specific Query"
	StepScanByEnvironment    = "Scan Environment-Specific Query"
	StepSeedEnvironment      = "Seed Environment Data"
	StepCloseConnection      = "Disconnect From Database"
)

// Observer intercepts every Manager operation. BeforeStep may return a
// derived context; AfterStep receives the operation error, so failure
// handlers (screenshots, report attachments) act when err != nil.
type Observer interface {
	BeforeStep(ctx context.Context, step string) context.Context
	AfterStep(ctx context.Context, step string, elapsed time.Duration, err error)
	Attach(ctx context.Context, name, body string)
}

// Observers fans out to every member in order.
type Observers []Observer

func (o Observers) BeforeStep(ctx context.Context, step string) context.Context {
	for _, obs := range o {
		ctx = obs.BeforeStep(ctx, step)
	}
	return ctx
}

func (o Observers) AfterStep(ctx context.Context, step string, elapsed time.Duration, err error) {
	for i := len(o) - 1; i >= 0; i-- {
		o[i].AfterStep(ctx, step, elapsed, err)
	}
}

func (o Observers) Attach(ctx context.Context, name, body string) {
	for _, obs := range o {
		obs.Attach(ctx, name, body)
	}
}

// FailureFunc is an Observer that only reacts to failed steps.
type FailureFunc func(ctx context.Context, step string, err error)

func (f FailureFunc) BeforeStep(ctx context.Context, _ string) context.Context { return ctx }

func (f FailureFunc) AfterStep(ctx context.Context, step string, _ time.Duration, err error) {
	if err != nil {
		f(ctx, step, err)
	}
}

func (f FailureFunc) Attach(context.Context, string, string) {}

// LogObserver writes steps and attachments to a Logger.
type LogObserver struct {
	logger Logger
}

func NewLogObserver(logger Logger) *LogObserver {
	if logger == nil {
		logger = GetLogger()
	}
	return &LogObserver{logger: logger}
}

func (o *LogObserver) BeforeStep(ctx context.Context, step string) context.Context {
	o.logger.Debug("Step started", "step", step)
	return ctx
}

func (o *LogObserver) AfterStep(_ context.Context, step string, elapsed time.Duration, err error) {
	if err != nil {
		o.logger.Error("Step failed", "step", step, "elapsed", elapsed.Round(time.Millisecond), "error", err)
		return
	}
	o.logger.Debug("Step passed", "step", step, "elapsed", elapsed.Round(time.Millisecond))
}

func (o *LogObserver) Attach(_ context.Context, name, body string) {
	o.logger.Info(name, "body", body)
}

// StepRecord is one finished step captured by a Recorder.
type StepRecord struct {
	Name    string
	Parent  string
	Started time.Time
	Elapsed time.Duration
	Err     error
}

func (s StepRecord) Passed() bool { return s.Err == nil }

// Attachment is a named body recorded inside a step.
type Attachment struct {
	Step string
	Name string
	Body string
}

// Recorder keeps every step and attachment in memory, in completion order.
type Recorder struct {
	mu          sync.Mutex
	open        []StepRecord
	steps       []StepRecord
	attachments []Attachment
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) BeforeStep(ctx context.Context, step string) context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := StepRecord{Name: step, Started: time.Now()}
	if n := len(r.open); n > 0 {
		rec.Parent = r.open[n-1].Name
	}
	r.open = append(r.open, rec)
	return ctx
}

func (r *Recorder) AfterStep(_ context.Context, step string, elapsed time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := StepRecord{Name: step}
	for i := len(r.open) - 1; i >= 0; i-- {
		if r.open[i].Name == step {
			rec = r.open[i]
			r.open = append(r.open[:i], r.open[i+1:]...)
			break
		}
	}
	rec.Elapsed = elapsed
	rec.Err = err
	r.steps = append(r.steps, rec)
}

func (r *Recorder) Attach(_ context.Context, name, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := Attachment{Name: name, Body: body}
	if n := len(r.open); n > 0 {
		a.Step = r.open[n-1].Name
	}
	r.attachments = append(r.attachments, a)
}

func (r *Recorder) Steps() []StepRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StepRecord(nil), r.steps...)
}

func (r *Recorder) Attachments() []Attachment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Attachment(nil), r.attachments...)
}

// Failed returns the steps that finished with an error.
func (r *Recorder) Failed() []StepRecord {
	var failed []StepRecord
	for _, s := range r.Steps() {
		if !s.Passed() {
			failed = append(failed, s)
		}
	}
	return failed
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open, r.steps, r.attachments = nil, nil, nil
}
