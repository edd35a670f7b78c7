package placement

import (
	"errors"
	"testing"

	"dstash/internal/config"
	"dstash/internal/model"
)

func TestRulePolicy(t *testing.T) {
	policy, err := NewRulePolicy(config.PlacementConfig{
		Rules: []config.PlacementRule{
			{PathSuffix: ".iso", RemotePools: []string{"bulk"}},
			{PathPrefix: "/scratch/", Piles: []int64{3}},
			{MaxSize: 4096, Inline: true},
			{RemotePools: []string{"default"}, Piles: []int64{1}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		info FileInfo
		want Desire
	}{
		{
			"suffix rule wins first",
			FileInfo{Path: "/images/distro.iso", Size: 100},
			Desire{RemotePools: []string{"bulk"}},
		},
		{
			"prefix rule",
			FileInfo{Path: "/scratch/tmp.bin", Size: 1 << 20},
			Desire{Piles: []int64{3}},
		},
		{
			"small files go inline",
			FileInfo{Path: "/etc/motd", Size: 4096},
			Desire{Inline: true},
		},
		{
			"catch-all",
			FileInfo{Path: "/media/video.mkv", Size: 1 << 30},
			Desire{RemotePools: []string{"default"}, Piles: []int64{1}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := policy.NewFileDesire(tc.info)
			if err != nil {
				t.Fatal(err)
			}
			if got.Inline != tc.want.Inline ||
				len(got.Piles) != len(tc.want.Piles) ||
				len(got.RemotePools) != len(tc.want.RemotePools) {
				t.Errorf("desire = %+v, want %+v", got, tc.want)
			}
			for i := range tc.want.Piles {
				if got.Piles[i] != tc.want.Piles[i] {
					t.Errorf("Piles[%d] = %d, want %d", i, got.Piles[i], tc.want.Piles[i])
				}
			}
			for i := range tc.want.RemotePools {
				if got.RemotePools[i] != tc.want.RemotePools[i] {
					t.Errorf("RemotePools[%d] = %q, want %q", i, got.RemotePools[i], tc.want.RemotePools[i])
				}
			}
		})
	}
}

func TestRulePolicyNoMatch(t *testing.T) {
	policy, err := NewRulePolicy(config.PlacementConfig{
		Rules: []config.PlacementRule{{MaxSize: 10, Inline: true}},
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = policy.NewFileDesire(FileInfo{Path: "/big", Size: 11})
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRulePolicyValidation(t *testing.T) {
	for name, rule := range map[string]config.PlacementRule{
		"negative min": {MinSize: -1},
		"negative max": {MaxSize: -5},
		"inverted":     {MinSize: 100, MaxSize: 10},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewRulePolicy(config.PlacementConfig{Rules: []config.PlacementRule{rule}})
			if !errors.Is(err, model.ErrInvalidArgument) {
				t.Errorf("error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestDesireEmpty(t *testing.T) {
	if !(Desire{}).Empty() {
		t.Error("zero desire should be empty")
	}
	for _, d := range []Desire{
		{Inline: true},
		{Piles: []int64{1}},
		{RemotePools: []string{"p"}},
	} {
		if d.Empty() {
			t.Errorf("%+v should not be empty", d)
		}
	}
}
