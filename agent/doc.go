// Package agent contains core.Agent implementations and supporting
// utilities for building composable agents on top of the engine. The package
// focuses on three concerns:
//
//  1. Shared identity plumbing (BaseAgent, Instruction)
//  2. Model-centric agents (ModelAgent with its tool-calling loop, Extractor)
//  3. Coordination patterns (SequentialAgent, ParallelAgent, LoopAgent)
//
// Composite agents never call their children directly. They dispatch by name
// through the AgentCtx so every child runs in its own scoped context with its
// own model call budget; children therefore have to be registered with the
// same engine.
package agent
