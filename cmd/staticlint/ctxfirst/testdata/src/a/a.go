package a

import "context"

type store struct{}

func (store) List(ctx context.Context, userID string) error { return nil }

func (store) Delete(userID string, ctx context.Context) error { return nil } // want "context.Context should be the first parameter of Delete"

func add(title, url string, ctx context.Context) {} // want "context.Context should be the first parameter of add"

func ping(ctx context.Context) {}

func none() {}

var handler = func(srv any, ctx context.Context) {}
