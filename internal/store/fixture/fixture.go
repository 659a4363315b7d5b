// Package fixture loads actors and conversations from a YAML file into a
// store. Conversation administration lives outside the gateway, so this is
// how development and test environments get data.
package fixture

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Tyrowin/chatgate/internal/chat"
)

// Fixture is the document layout:
//
//	actors:
//	  - id: alice
//	    displayName: Alice
//	    username: alice
//	conversations:
//	  - id: general
//	    kind: group
//	    members: [alice, bob]
//	    admins: [alice]
type Fixture struct {
	Actors        []chat.Actor        `yaml:"actors"`
	Conversations []chat.Conversation `yaml:"conversations"`
}

// Decode parses a fixture and validates every conversation. Members must
// be listed as actors.
func Decode(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}

	known := make(map[string]struct{}, len(f.Actors))
	for _, a := range f.Actors {
		if a.ID == "" {
			return nil, fmt.Errorf("%w: actor without id", chat.ErrInvalidArgument)
		}
		known[a.ID] = struct{}{}
	}
	for i := range f.Conversations {
		c := &f.Conversations[i]
		if err := c.Validate(); err != nil {
			return nil, err
		}
		for _, m := range c.Members {
			if _, ok := known[m]; !ok {
				return nil, fmt.Errorf("%w: conversation %s references unknown actor %s", chat.ErrInvalidArgument, c.ID, m)
			}
		}
	}
	return &f, nil
}

// LoadFile reads and decodes the fixture at path.
func LoadFile(path string) (*Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Apply writes the fixture through s, actors first.
func (f *Fixture) Apply(ctx context.Context, s chat.Seeder) error {
	for _, a := range f.Actors {
		if err := s.PutActor(ctx, a); err != nil {
			return fmt.Errorf("put actor %s: %w", a.ID, err)
		}
	}
	for _, c := range f.Conversations {
		if err := s.PutConversation(ctx, c); err != nil {
			return fmt.Errorf("put conversation %s: %w", c.ID, err)
		}
	}
	return nil
}
