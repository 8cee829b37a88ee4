package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"bonfire/internal/redundancy"
	"bonfire/internal/task"
)

// storeReader is the read side of the redundancy layer.
type storeReader interface {
	GetAll(ctx context.Context) (redundancy.Batch, error)
	Fetch(ctx context.Context, key string) (task.Task, bool, error)
}

func listTasks(ctx context.Context, r storeReader, out io.Writer) error {
	batch, err := r.GetAll(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	for _, t := range batch.Tasks {
		if err := enc.Encode(viewOf(t)); err != nil {
			return err
		}
	}
	for _, u := range batch.Unknown {
		v := taskView{Key: u.Key, Tag: u.Tag, Unknown: true}
		if u.Err != nil {
			v.Error = u.Err.Error()
		}
		if err := enc.Encode(v); err != nil {
			return err
		}
	}
	return nil
}

func getTask(ctx context.Context, r storeReader, key string, out io.Writer) error {
	t, ok, err := r.Fetch(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("task %q not found", key)
	}
	return json.NewEncoder(out).Encode(viewOf(t))
}
