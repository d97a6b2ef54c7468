// Package sim provides the two simulation engines for anti-VEGF treatment
// of neovascular AMD.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - config.go: RunConfig, the format-free input of one run
//   - care.go: enrollment, progression steps and visits, shared by both engines
//   - abs.go: the agent-stepped engine (day-major, patient-minor)
//   - des.go, event.go, event_heap.go: the event-queue engine
//
// # Architecture
//
// The engines own no clinical logic. Decision components live in
// sub-packages and are composed into each run:
//   - sim/disease/: disease-state transition model
//   - sim/protocol/: treat-and-extend and fixed-interval protocols
//   - sim/patient/: patient record, visit history, enhancers
//   - sim/vision/: vision response and measurement noise
//   - sim/discontinuation/: discontinuation ladder, retreatment, recurrence
//   - sim/heterogeneity/: optional per-patient response variation
//   - sim/baseline/: baseline vision distributions
//   - sim/rates/: probability unit conversions
//   - sim/trace/: decision trace recording
//
// # Time and randomness
//
// Time is whole days since RunConfig.StartDate. In the default time_based
// mode every enrolled patient takes a disease step every TickDays
// regardless of visits; visits only decide treatment and measure vision.
// Every stochastic component draws from its own PartitionedRNG subsystem,
// and both engines process same-day work in the same order (enrollments,
// progression steps, visits; each by enrollment order), so the two engines
// consume identical random sequences for the same seed.
package sim
