// Package durable wraps every non-pure host function a worker's WASM
// guest can call so that its observable effects become part of the
// worker's oplog instead of the guest's private state.
//
// A Wrapper carries a DurableFunctionType that decides what "replay
// this call" means: ReadLocal/ReadRemote/WriteLocal calls simply return
// their recorded result, while WriteRemote calls additionally bracket
// the live call with BeginRemoteWrite/EndRemoteWrite so an executor
// crash mid-write leaves a detectable, fail-fast mark rather than a
// silently duplicated side effect.
//
// Wrappers are registered as wazero host functions (see Register), but
// the contract itself — consume-on-replay, append-on-live — has no
// wazero dependency and is exercised directly in tests.
package durable
