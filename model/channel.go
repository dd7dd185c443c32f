package model

import (
	"fmt"
	"strings"
)

type YoutubeChannelID string

type ChannelRef struct {
	ID   YoutubeChannelID
	Name string
}

func (c ChannelRef) Validate() error {
	if strings.TrimSpace(string(c.ID)) == "" {
		return fmt.Errorf("channel %q has no id", c.Name)
	}

	return nil
}
