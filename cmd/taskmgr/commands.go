package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/loykin/taskmgr/pkg/client"
)

type command struct {
	api *APIFlags
}

func (c command) client() *client.Client {
	return client.New(client.Config{
		BaseURL:  c.api.APIUrl,
		AdminURL: c.api.AdminURL,
		Timeout:  c.api.APITimeout,
	})
}

func (c command) Create(ctx context.Context, w io.Writer, f CreateFlags) error {
	t, err := c.client().CreateTask(ctx, client.CreateRequest{Task: f.Task, Type: f.Type, Priority: f.Priority})
	if err != nil {
		return err
	}
	return printJSON(w, t)
}

func (c command) List(ctx context.Context, w io.Writer, f ListFlags) error {
	var (
		ts  []client.Task
		err error
	)
	if f.Sort == "" {
		ts, err = c.client().ListTasks(ctx)
	} else {
		ts, err = c.client().ListTasksSorted(ctx, f.Sort)
	}
	if err != nil {
		return err
	}
	return printJSON(w, ts)
}

func (c command) Get(ctx context.Context, w io.Writer, pid int64) error {
	t, err := c.client().GetTask(ctx, pid)
	if err != nil {
		return err
	}
	return printJSON(w, t)
}

func (c command) Kill(ctx context.Context, w io.Writer, f KillFlags) error {
	var (
		ts  []client.Task
		err error
	)
	switch {
	case f.All:
		ts, err = c.client().RemoveAllTasks(ctx)
	case len(f.PIDs) == 1:
		ts, err = c.client().RemoveTask(ctx, f.PIDs[0])
	case len(f.PIDs) > 1:
		ts, err = c.client().RemoveTasks(ctx, f.PIDs...)
	default:
		return fmt.Errorf("either --pid or --all is required")
	}
	if err != nil {
		return err
	}
	return printJSON(w, ts)
}

func (c command) Capacity(ctx context.Context, w io.Writer) error {
	n, err := c.client().Capacity(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, n)
	return err
}

func (c command) SetCapacity(ctx context.Context, w io.Writer, n int) error {
	got, err := c.client().SetCapacity(ctx, n)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, got)
	return err
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
