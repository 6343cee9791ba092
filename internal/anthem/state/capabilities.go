package state

import (
	"fmt"

	"github.com/strefethen/anthem-hub-go/internal/anthem/protocol"
)

// Capabilities holds the discovered input count and names. It is not
// synchronized; Store guards it.
type Capabilities struct {
	count     int
	names     map[int]string
	seed      []string
	completed bool
}

func newCapabilities(seed []string) *Capabilities {
	return &Capabilities{
		names: make(map[int]string),
		seed:  append([]string(nil), seed...),
	}
}

// setCount starts a new discovery round. Names already learned stay
// usable until the receiver reports new ones; only inputs past the new
// count are forgotten.
func (c *Capabilities) setCount(count int) {
	c.count = count
	for number := range c.names {
		if number < 1 || number > count {
			delete(c.names, number)
		}
	}
	c.completed = false
}

// addName records an input name. It returns true exactly once per round,
// when the last missing name arrives.
func (c *Capabilities) addName(number int, name string) bool {
	c.names[number] = name
	if c.completed || !c.isComplete() {
		return false
	}
	c.completed = true
	return true
}

func (c *Capabilities) isComplete() bool {
	if c.count <= 0 {
		return false
	}
	for i := 1; i <= c.count; i++ {
		if _, ok := c.names[i]; !ok {
			return false
		}
	}
	return true
}

// missing lists input numbers without a live name.
func (c *Capabilities) missing() []int {
	var out []int
	for i := 1; i <= c.count; i++ {
		if _, ok := c.names[i]; !ok {
			out = append(out, i)
		}
	}
	return out
}

// name resolves the display name for an input number.
func (c *Capabilities) name(number int) string {
	if name, ok := c.names[number]; ok {
		return name
	}
	if number >= 1 && number <= len(c.seed) {
		return c.seed[number-1]
	}
	if c.count == 0 && len(c.seed) == 0 && number >= 1 && number <= len(protocol.DefaultInputs) {
		return protocol.DefaultInputs[number-1]
	}
	return fmt.Sprintf("Input %d", number)
}

func (c *Capabilities) list() []string {
	if c.count == 0 {
		if len(c.seed) > 0 {
			return append([]string(nil), c.seed...)
		}
		return append([]string(nil), protocol.DefaultInputs...)
	}
	out := make([]string, 0, c.count)
	for i := 1; i <= c.count; i++ {
		out = append(out, c.name(i))
	}
	return out
}

func (c *Capabilities) numberByName(name string) (int, bool) {
	for i := 1; i <= c.count; i++ {
		if inputName, ok := c.names[i]; ok && inputName == name {
			return i, true
		}
	}
	for number, inputName := range c.names {
		if inputName == name {
			return number, true
		}
	}
	for i, inputName := range c.seed {
		if inputName == name {
			return i + 1, true
		}
	}
	if c.count == 0 && len(c.seed) == 0 {
		for i, inputName := range protocol.DefaultInputs {
			if inputName == name {
				return i + 1, true
			}
		}
	}
	// Gap names produced by list() resolve too.
	for i := 1; i <= c.count; i++ {
		if c.name(i) == name {
			return i, true
		}
	}
	return 0, false
}
