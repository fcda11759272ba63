// Package process runs a single child process that is fed through stdin.
//
// A Process:
//   - starts the command in its own process group with a stdin pipe
//   - streams stdout/stderr lines to a logger, optionally through a LogParser
//   - finishes either by closing stdin and waiting (Finish), or by
//     SIGINT followed by SIGKILL after a timeout (Stop)
//
// The recorder uses it to drive an ffmpeg encoder:
//
//	p := process.New("recorder", []string{"ffmpeg", "-f", "rawvideo", ...}, logger)
//	p.SetLogParser(logging.GetLogger("ffmpeg"), ffmpeg.ParseLogLevel)
//	if err := p.Start(); err != nil { ... }
//	_, err := p.Write(frame)
//	code := p.Finish(10 * time.Second)
package process
