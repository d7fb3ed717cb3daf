package stl

import (
	"bytes"
	"iter"

	"stdview/errors"
	"stdview/memory"
)

// KeyMatcher decides whether a key stored in the target equals the key a
// caller is looking for. Maps are searched linearly with it.
type KeyMatcher func(key memory.Remote) (bool, error)

// BytesKey matches keys whose raw object bytes equal b.
func BytesKey(b []byte) KeyMatcher {
	return func(key memory.Remote) (bool, error) {
		if key.Type == nil || key.Type.Size() != int64(len(b)) {
			return false, nil
		}
		raw, err := key.Bytes()
		if err != nil {
			return false, err
		}
		return bytes.Equal(raw, b), nil
	}
}

// UintKey matches integer keys of any width by value.
func UintKey(v uint64) KeyMatcher {
	return func(key memory.Remote) (bool, error) {
		u, err := key.Uint()
		if err != nil {
			return false, err
		}
		return u == v, nil
	}
}

// IntKey matches signed integer keys of any width by value.
func IntKey(v int64) KeyMatcher {
	return func(key memory.Remote) (bool, error) {
		i, err := key.Int()
		if err != nil {
			return false, err
		}
		return i == v, nil
	}
}

// StringKey matches std::string keys by content.
func StringKey(s string) KeyMatcher {
	return func(key memory.Remote) (bool, error) {
		str, err := OpenString(key)
		if err != nil {
			return false, err
		}
		n, err := str.Len()
		if err != nil {
			return false, err
		}
		if n != len(s) && str.facts.charSize == 1 {
			return false, nil
		}
		got, err := str.String()
		if err != nil {
			return false, err
		}
		return got == s, nil
	}
}

func find(entries iter.Seq2[*Pair, error], key KeyMatcher) (*Pair, error) {
	for e, err := range entries {
		if err != nil {
			return nil, err
		}
		ok, err := key(e.First())
		if err != nil {
			return nil, err
		}
		if ok {
			return e, nil
		}
	}
	return nil, errors.ErrKeyNotFound
}

func contains(entries iter.Seq2[*Pair, error], key KeyMatcher) (bool, error) {
	_, err := find(entries, key)
	if errors.Is(err, errors.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func project(entries iter.Seq2[*Pair, error], side func(*Pair) memory.Remote) iter.Seq2[memory.Remote, error] {
	return func(yield func(memory.Remote, error) bool) {
		for e, err := range entries {
			if err != nil {
				yield(memory.Remote{}, err)
				return
			}
			if !yield(side(e), nil) {
				return
			}
		}
	}
}
