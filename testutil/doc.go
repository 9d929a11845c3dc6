// Package testutil provides fixtures shared by the protosignal package tests.
//
// # Schema Fixture
//
// Schema builds a small protobuf file at runtime so tests do not depend on
// generated code. Message, Enum and MessageType look up its descriptors by
// short name, and Types returns a registry holding all of them as dynamic
// types:
//
//	mt := testutil.MessageType("Inner")
//	msg, err := codec.NewBuilder().Build(mt, map[string]any{"name": "probe"})
//
// # Mock Transport
//
// MockNATSClient is an in-memory stand-in for natsclient.Client. It records
// every published payload, delivers synchronously to matching subscriptions
// and honours the "*" and ">" wildcards:
//
//	client := testutil.NewMockNATSClient()
//	_ = client.Subscribe(ctx, "signals.>", handler)
//	_ = client.Publish(ctx, "signals.devices", data)
//	testutil.WaitForMessageCount(t, client, "signals.devices", 1, time.Second)
//
// All helpers are safe for concurrent use.
package testutil
