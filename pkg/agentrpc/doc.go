// See agentrpc.go for the AgentRPC interface, client.go for the gRPC
// implementation, and fake.go for the in-memory test double the dispatcher
// tests dial against instead of a real agent daemon.
package agentrpc
