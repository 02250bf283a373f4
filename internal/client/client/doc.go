// Package client talks to a chatrelay server for the terminal client.
//
// A Client holds one WebSocket connection for authentication, sending and
// receiving live messages. Replies to auth requests are returned from
// Authenticate; every other inbound frame (deliveries, errors, history) is
// handed to the callback given to Dial, from the client's read goroutine.
// History and Logout go through the HTTP polling API with the session token.
//
// Errors the server reports are returned as *ServerError carrying the
// server's error code. ErrNotLoggedIn and ErrClosed are sentinels for local
// conditions and can be matched with errors.Is.
package client
