package redis

import "github.com/redis/rueidis"

// NewStoreForTest wraps a (mock) rueidis client in a Store. Test helper.
func NewStoreForTest(client rueidis.Client, dim int) *Store {
	return newStore(client, Config{Dim: dim})
}
