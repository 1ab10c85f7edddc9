// Package connectivity tracks whether the process can reach the network.
// A Monitor aggregates one or more signal sources; the session is offline
// only when every source reports no signal. Transitions fan out to
// subscribers so sync can drain its outbox the moment the network
// returns.
package connectivity
