/*
Package events provides the in-memory change bus that carries committed
document writes from the write pipeline to the listen reactor and the
trigger router.

A Broker accepts one ChangeBatch per commit and fans it out to every
subscriber's channel, in publish order. Delivery is ordered and
non-dropping: a slow subscriber backpressures the broadcast loop rather
than losing a commit, because listen targets and triggers must see every
change to stay consistent with the store.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for batch := range sub {
			for _, rec := range batch.Records {
				// react to rec.Before / rec.After
			}
		}
	}()

	broker.Publish(&events.ChangeBatch{CommitTime: t, Records: records})
*/
package events
