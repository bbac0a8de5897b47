/*
Package mispbridge coordinates the bridge between a MISP instance and a
message-bus fabric: request topics dispatched to the upstream API under
bounded concurrency, and upstream notifications republished as fabric events.
It owns both dispatch pools and all lifecycle transitions while remaining
decoupled from concrete transports via interfaces.
*/
package mispbridge
