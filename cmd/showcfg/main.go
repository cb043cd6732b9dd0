package main

import (
	"fmt"

	"mivta/internal/config"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}
	fmt.Printf("config=%s sample_rate=%d threshold=%.2f workers=%d crossfade_ms=%d\n",
		cfg.Paths.ConfigPath, cfg.Audio.SampleRate, cfg.Model.SimilarityThreshold, cfg.Correction.Workers, cfg.Correction.CrossfadeMS)
	fmt.Printf("store=%s syllables=%s\n", cfg.Paths.StoreDir, cfg.Paths.SyllablesDir)
	for i, h := range cfg.Hooks {
		fmt.Printf("hook %d on=%s cmd=%s args=%v\n", i, h.On, h.Command, h.Args)
	}
}
