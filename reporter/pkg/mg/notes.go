package mg

import (
	"context"
	"errors"
	"fmt"

	"glucolog/reporter/defs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type noteDoc struct {
	Key  string `bson:"key"`
	Note string `bson:"note"`
}

// NoteStore keeps note overrides in the notes collection. It satisfies
// notes.Store, so every call runs under its own timeout.
type NoteStore struct {
	Store *MongoStore
}

func NewNoteStore(ms *MongoStore) *NoteStore {
	return &NoteStore{Store: ms}
}

func (ns *NoteStore) Get(key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), defs.TimeoutInterval)
	defer cancel()

	var doc noteDoc
	err := ns.Store.collection(NotesCollection).FindOne(ctx, bson.M{"key": key}).Decode(&doc)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			ns.Store.Logger.Debug("unable to read note", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	return doc.Note, true
}

func (ns *NoteStore) Set(key, note string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defs.TimeoutInterval)
	defer cancel()

	_, err := ns.Store.Upsert(ctx, NotesCollection, bson.M{"key": key}, noteDoc{Key: key, Note: note})
	if err != nil {
		return fmt.Errorf("unable to set note: %w", err)
	}
	return nil
}

func (ns *NoteStore) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defs.TimeoutInterval)
	defer cancel()

	return ns.Store.DeleteOne(ctx, NotesCollection, bson.M{"key": key})
}

func (ns *NoteStore) All() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), defs.TimeoutInterval)
	defer cancel()

	all := make(map[string]string)

	cur, err := ns.Store.collection(NotesCollection).Find(ctx, bson.M{})
	if err != nil {
		ns.Store.Logger.Debug("unable to read notes", zap.Error(err))
		return all
	}

	var docs []noteDoc
	if err := cur.All(ctx, &docs); err != nil {
		ns.Store.Logger.Debug("unable to decode notes", zap.Error(err))
		return all
	}
	for _, doc := range docs {
		all[doc.Key] = doc.Note
	}
	return all
}
