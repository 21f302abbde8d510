package main

import (
	"time"

	"github.com/normanking/signsynth/internal/bus"
	"github.com/normanking/signsynth/internal/clock"
	"github.com/normanking/signsynth/internal/media"
	"github.com/normanking/signsynth/internal/pose"
	"github.com/normanking/signsynth/internal/rig"
	"github.com/normanking/signsynth/internal/signer"
	"github.com/normanking/signsynth/internal/timeline"
)

// engine is one fully wired signing pipeline.
type engine struct {
	lib     *pose.Library
	table   *rig.Table
	builder *timeline.Builder
	rig     *rig.Memory
	loop    *clock.Loop
	events  *bus.EventBus
	signer  *signer.Signer
	media   *media.Controller // nil unless media control is enabled
}

type engineOptions struct {
	start       time.Time
	withMedia   bool
	diagnostics signer.Diagnostics
	onStatus    func(string)
	onComplete  func()
}

func (a *app) loadLibrary() (*pose.Library, error) {
	return pose.LoadFile(a.cfg.Poses.Path, a.cfg.Poses.DefaultKey)
}

func (a *app) loadTable() (*rig.Table, error) {
	if a.cfg.Rig.SkeletonPath == "" {
		return rig.DefaultTable(), nil
	}
	names := rig.DefaultSkeletonNames(a.cfg.Rig.LeftArmNode, a.cfg.Rig.RightArmNode)
	return rig.LoadSkeleton(a.cfg.Rig.SkeletonPath, names)
}

func (a *app) buildEngine(opts engineOptions) (*engine, error) {
	lib, err := a.loadLibrary()
	if err != nil {
		return nil, err
	}
	table, err := a.loadTable()
	if err != nil {
		return nil, err
	}

	e := &engine{
		lib:     lib,
		table:   table,
		builder: timeline.NewBuilder(table, a.cfg.Timing),
		rig:     rig.NewMemory(table),
		loop:    clock.NewLoop(opts.start),
		events:  bus.NewEventBus(),
	}

	var gate media.Gate = media.NopGate{}
	if opts.withMedia {
		var presser media.KeyPresser
		if len(a.cfg.Media.KeyCommand) > 0 {
			presser = media.CommandPresser{Name: a.cfg.Media.KeyCommand[0], Args: a.cfg.Media.KeyCommand[1:]}
		}
		e.media = media.NewController(a.cfg.Media, presser, e.events, a.log.Component("media"))
		gate = e.media
	}

	e.signer, err = signer.New(signer.Deps{
		Library:     lib,
		Rig:         e.rig,
		Builder:     e.builder,
		Scheduler:   e.loop,
		Gate:        gate,
		Events:      e.events,
		Log:         a.log.Component("signer"),
		Diagnostics: opts.diagnostics,
		Timing:      a.cfg.Timing,
		OnStatus:    opts.onStatus,
		OnComplete:  opts.onComplete,
	})
	if err != nil {
		return nil, err
	}

	// start from the rest pose
	e.builder.Snap(e.rig, lib.Default().First())

	a.log.Info("engine", "Engine ready", map[string]interface{}{
		"poses":  lib.Len(),
		"joints": table.Len(),
		"media":  opts.withMedia,
	})
	return e, nil
}
