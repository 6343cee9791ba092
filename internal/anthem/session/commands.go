package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/strefethen/anthem-hub-go/internal/anthem/protocol"
)

var (
	ErrInvalidZone          = errors.New("invalid zone")
	ErrUnknownInput         = errors.New("unknown input")
	ErrUnknownListeningMode = errors.New("unknown listening mode")
)

func (s *Session) encoder() protocol.Encoder {
	return protocol.NewEncoder(s.Dialect())
}

func checkZone(zone int) error {
	if zone < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidZone, zone)
	}
	return nil
}

func (s *Session) sendZone(ctx context.Context, zone int, cmd func(protocol.Encoder) string) error {
	if err := checkZone(zone); err != nil {
		return err
	}
	return s.Send(ctx, cmd(s.encoder()))
}

// sendSequence sends commands spaced by CommandDelay.
func (s *Session) sendSequence(ctx context.Context, commands []string) error {
	for i, cmd := range commands {
		if i > 0 {
			if err := sleepContext(ctx, s.opts.CommandDelay); err != nil {
				return err
			}
		}
		if err := s.Send(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) PowerOn(ctx context.Context, zone int) error {
	return s.sendZone(ctx, zone, func(e protocol.Encoder) string { return e.Power(zone, true) })
}

func (s *Session) PowerOff(ctx context.Context, zone int) error {
	return s.sendZone(ctx, zone, func(e protocol.Encoder) string { return e.Power(zone, false) })
}

// SetVolume sets the zone volume in dB, clamped to the receiver range.
func (s *Session) SetVolume(ctx context.Context, zone, db int) error {
	return s.sendZone(ctx, zone, func(e protocol.Encoder) string { return e.SetVolume(zone, db) })
}

// SetVolumePercent sets the zone volume on the linear 0..100 scale.
func (s *Session) SetVolumePercent(ctx context.Context, zone, percent int) error {
	return s.SetVolume(ctx, zone, protocol.PercentToDB(percent))
}

func (s *Session) VolumeUp(ctx context.Context, zone int) error {
	return s.sendZone(ctx, zone, func(e protocol.Encoder) string { return e.VolumeUp(zone) })
}

func (s *Session) VolumeDown(ctx context.Context, zone int) error {
	return s.sendZone(ctx, zone, func(e protocol.Encoder) string { return e.VolumeDown(zone) })
}

func (s *Session) SetMute(ctx context.Context, zone int, muted bool) error {
	return s.sendZone(ctx, zone, func(e protocol.Encoder) string { return e.Mute(zone, muted) })
}

// ToggleMute uses MUTt where the receiver supports it and otherwise sends
// the inverse of the cached mute state.
func (s *Session) ToggleMute(ctx context.Context, zone int) error {
	if err := checkZone(zone); err != nil {
		return err
	}
	enc := s.encoder()
	cmd, err := enc.MuteToggle(zone)
	if errors.Is(err, protocol.ErrUnsupported) {
		muted := false
		if z, ok := s.store.Zone(zone); ok {
			muted = z.Muted
		}
		cmd = enc.Mute(zone, !muted)
	}
	return s.Send(ctx, cmd)
}

func (s *Session) SelectInput(ctx context.Context, zone, input int) error {
	if input < 1 {
		return fmt.Errorf("%w: %d", ErrUnknownInput, input)
	}
	return s.sendZone(ctx, zone, func(e protocol.Encoder) string { return e.SelectInput(zone, input) })
}

// SelectInputByName resolves name against the discovered source list.
func (s *Session) SelectInputByName(ctx context.Context, zone int, name string) error {
	input, ok := s.store.InputNumberByName(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownInput, name)
	}
	return s.SelectInput(ctx, zone, input)
}

func (s *Session) SetListeningMode(ctx context.Context, zone, mode int) error {
	if mode < 0 {
		return fmt.Errorf("%w: %d", ErrUnknownListeningMode, mode)
	}
	return s.sendZone(ctx, zone, func(e protocol.Encoder) string { return e.SetListeningMode(zone, mode) })
}

func (s *Session) SetListeningModeByName(ctx context.Context, zone int, name string) error {
	mode, ok := protocol.ListeningModeCode(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownListeningMode, name)
	}
	return s.SetListeningMode(ctx, zone, mode)
}

func (s *Session) QueryPower(ctx context.Context, zone int) error {
	return s.sendZone(ctx, zone, func(e protocol.Encoder) string { return e.QueryPower(zone) })
}

func (s *Session) QueryVolume(ctx context.Context, zone int) error {
	return s.sendZone(ctx, zone, func(e protocol.Encoder) string { return e.QueryVolume(zone) })
}

func (s *Session) QueryMute(ctx context.Context, zone int) error {
	return s.sendZone(ctx, zone, func(e protocol.Encoder) string { return e.QueryMute(zone) })
}

func (s *Session) QueryInput(ctx context.Context, zone int) error {
	return s.sendZone(ctx, zone, func(e protocol.Encoder) string { return e.QueryInput(zone) })
}

// QueryAllStatus queries power, volume, mute and input of a zone.
func (s *Session) QueryAllStatus(ctx context.Context, zone int) error {
	if err := checkZone(zone); err != nil {
		return err
	}
	enc := s.encoder()
	return s.sendSequence(ctx, []string{
		enc.QueryPower(zone),
		enc.QueryVolume(zone),
		enc.QueryMute(zone),
		enc.QueryInput(zone),
	})
}

// QueryAudioInfo queries the decoded stream telemetry of a zone.
func (s *Session) QueryAudioInfo(ctx context.Context, zone int) error {
	if err := checkZone(zone); err != nil {
		return err
	}
	return s.sendSequence(ctx, s.encoder().AudioInfoQueries(zone))
}

func (s *Session) QueryModel(ctx context.Context) error {
	return s.Send(ctx, protocol.CmdModelQuery)
}

// RediscoverInputs asks for the input count, which restarts discovery.
func (s *Session) RediscoverInputs(ctx context.Context) error {
	return s.Send(ctx, protocol.CmdInputCountQuery)
}
