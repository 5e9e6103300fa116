package storage_test

import (
	"github.com/magabrotheeeer/paywall/internal/storage"
	"github.com/magabrotheeeer/paywall/internal/storage/memory"
	"github.com/magabrotheeeer/paywall/internal/storage/repository"
)

var (
	_ storage.Store = (*repository.Storage)(nil)
	_ storage.Store = (*memory.Storage)(nil)
)
