// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"slices"

	"github.com/jeranaias/chatstore/internal/model"
	"github.com/jeranaias/chatstore/internal/storage"
)

// bucket is an insertion-ordered set of conversations.
type bucket struct {
	ids   []string
	convs map[string]*model.Conversation
}

func newBucket() *bucket {
	return &bucket{convs: make(map[string]*model.Conversation)}
}

func (b *bucket) get(id string) (*model.Conversation, bool) {
	conv, ok := b.convs[id]
	return conv, ok
}

// add appends conv. The caller ensures the ID is not present.
func (b *bucket) add(conv *model.Conversation) {
	b.ids = append(b.ids, conv.ID)
	b.convs[conv.ID] = conv
}

// remove deletes id and returns the conversation it held.
func (b *bucket) remove(id string) (*model.Conversation, bool) {
	conv, ok := b.convs[id]
	if !ok {
		return nil, false
	}
	delete(b.convs, id)
	if i := slices.Index(b.ids, id); i >= 0 {
		b.ids = slices.Delete(b.ids, i, i+1)
	}
	return conv, true
}

// each visits conversations in insertion order.
func (b *bucket) each(fn func(*model.Conversation) bool) {
	for _, id := range b.ids {
		if !fn(b.convs[id]) {
			return
		}
	}
}

func (b *bucket) len() int {
	return len(b.ids)
}

func (b *bucket) fill(coll *storage.Collection) {
	b.each(func(conv *model.Conversation) bool {
		coll.Put(conv.ID, storage.RecordFromConversation(conv))
		return true
	})
}

func bucketFromCollection(coll *storage.Collection) (*bucket, error) {
	b := newBucket()
	for _, id := range coll.IDs() {
		rec, _ := coll.Get(id)
		conv, err := rec.Conversation(id)
		if err != nil {
			return nil, err
		}
		b.add(conv)
	}
	return b, nil
}
