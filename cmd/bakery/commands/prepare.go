package commands

import (
	"fmt"

	foundationerrors "git.home.luguber.info/inful/bakery/internal/foundation/errors"
	"git.home.luguber.info/inful/bakery/internal/sources"
)

// PrepareCmd implements the 'prepare' command.
type PrepareCmd struct {
	Source string `arg:"" help:"Source to create the item in"`
	Slug   string `arg:"" help:"Slug of the new item"`
	Date   string `help:"today, tomorrow, +N days or YYYY/MM/DD" default:"today"`
}

func (p *PrepareCmd) Run(root *CLI) error {
	s, err := root.OpenSite()
	if err != nil {
		return err
	}
	src := s.Source(p.Source)
	if src == nil {
		return foundationerrors.NotFoundError("unknown source").WithContext("source", p.Source).Build()
	}
	creator, ok := src.(sources.Creator)
	if !ok {
		return foundationerrors.ValidationError("source does not support creating content").
			WithContext("source", p.Source).
			WithContext("type", src.Type()).Build()
	}
	item, err := creator.CreateContent(sources.CreateArgs{Date: p.Date, Slug: p.Slug})
	if err != nil {
		return err
	}
	if err := sources.Scaffold(item); err != nil {
		return err
	}
	fmt.Println("Created", item.Spec)
	return nil
}
