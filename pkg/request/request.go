// Package request provides an immutable HTTP request builder, see the Spec type and the Get, Post, ... functions.
//
// A Spec is encoded to an encode.WireRequest by Build and sent by Execute using a Sender.
// The client.Client is a default implementation of the request.Sender interface
// based on the standard net/http package.
//
// Execute is asynchronous, it returns a Handle and delivers exactly one Result
// to the completion handler and to the Handle.
//
// RunGroup, WaitGroup and Parallel are helpers for concurrent requests.
package request
