// Package worker implements the worker agent: a loop that asks the master for
// work, renders the rows it is given into a scratch buffer, and sends them
// back, until the master answers with the termination sentinel.
package worker
