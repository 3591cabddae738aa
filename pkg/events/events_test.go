package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscriberInOrder(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	t1 := time.Now()
	t2 := t1.Add(time.Microsecond)
	b.Publish(&ChangeBatch{CommitTime: t1})
	b.Publish(&ChangeBatch{CommitTime: t2})

	first := <-sub
	second := <-sub
	require.True(t, first.CommitTime.Equal(t1))
	require.True(t, second.CommitTime.Equal(t2))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())
	b.Unsubscribe(sub)
	require.Equal(t, 0, b.SubscriberCount())

	_, ok := <-sub
	require.False(t, ok)
}

func TestMultipleSubscribersEachReceive(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	defer b.Unsubscribe(sub1)
	defer b.Unsubscribe(sub2)

	b.Publish(&ChangeBatch{Records: []Record{{Path: "users/alice"}}})

	batch1 := <-sub1
	batch2 := <-sub2
	require.Equal(t, "users/alice", batch1.Records[0].Path)
	require.Equal(t, "users/alice", batch2.Records[0].Path)
}
