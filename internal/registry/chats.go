package registry

import (
	"context"
	"sort"
	"strconv"

	"github.com/ObiAU/otprelay/internal/storage"
)

// ChatList is the set of Telegram chats that receive OTP notifications.
type ChatList struct {
	store storage.Store
}

func NewChatList(store storage.Store) *ChatList {
	return &ChatList{store: store}
}

func (c *ChatList) List(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := c.store.ForEach(ctx, storage.BucketChats, func(key string, _ []byte) error {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (c *ChatList) Add(ctx context.Context, chatID int64) error {
	return c.store.Put(ctx, storage.BucketChats, strconv.FormatInt(chatID, 10), []byte("1"))
}

func (c *ChatList) Remove(ctx context.Context, chatID int64) error {
	return c.store.Delete(ctx, storage.BucketChats, strconv.FormatInt(chatID, 10))
}

func (c *ChatList) Seed(ctx context.Context, chatIDs []int64) error {
	for _, id := range chatIDs {
		if err := c.Add(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
