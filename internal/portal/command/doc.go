// Package command holds the inputs and results of every portal use case.
// Commands carry validate tags checked by the mediator before a handler runs.
package command
