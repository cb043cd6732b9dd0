//go:build !portaudio

package doctor

func checkPortAudio() Result {
	return Result{Name: "mic", Pass: true, Detail: "recording disabled (rebuild with -tags portaudio)"}
}
