// Package policy implements the pluggable queueing policies the dispatcher
// uses to pick one pending session per tick out of a resource group's
// queue: FIFO, LIFO, DRF, MOF (which delegates agent choice to the MOF
// selector but queues FIFO), and Priority.
package policy
