// Package stream provides a hot multicast stream: one producer, many
// subscribers, no replay.
//
// # Semantics
//
// A Stream delivers each published item to every active subscription.
// Subscriptions created after an item was published never see it.
// Each subscription owns a buffered channel; when the buffer is full
// the item is dropped for that subscriber. Slow consumers therefore
// miss items rather than slowing the producer down.
//
// # Usage
//
//	s := stream.New(64)
//	sub := s.Subscribe()
//	defer sub.Cancel()
//
//	go s.Publish("hello")
//
//	for item := range sub.Items() {
//	    fmt.Println(item)
//	}
//
// Closing the stream closes every subscriber channel, so range loops
// over Items() terminate naturally.
package stream
