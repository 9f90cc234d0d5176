package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/luispater/mkvreader-go/internal/logger"
	"github.com/luispater/mkvreader-go/pkg/config"
	"github.com/luispater/mkvreader-go/pkg/matroska"
)

var cfg *config.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mkvdump [flags] <MKV_FILE>",
	Short: "Inspect and demux Matroska files",
	Long: `mkvdump reads a Matroska file and prints its metadata: segment info,
tracks, chapters, tags and attachments. With one or more tracks enabled it
also demuxes frames and prints their timecodes, durations and sizes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Check if no arguments provided, show help
		if len(args) == 0 {
			return cmd.Help()
		}
		cfg.InputFile = args[0]
		return runDump()
	},
}

func init() {
	cfg = config.NewConfig()

	rootCmd.Flags().BoolVar(&cfg.InfoOnly, "info-only", false, "Stop parsing at the first cluster and print metadata only")
	rootCmd.Flags().IntSliceVarP(&cfg.EnabledTracks, "track", "t", nil, "Track index to demux (repeatable; default: first audio track)")
	rootCmd.Flags().Uint32VarP(&cfg.QueueDepth, "queue-depth", "d", cfg.QueueDepth, "Maximum queued frames per track (0 = unbounded)")
	rootCmd.Flags().IntVarP(&cfg.SubSong, "subsong", "s", cfg.SubSong, "Chapter index to rebase playback to (-1 = whole file)")
	rootCmd.Flags().IntVarP(&cfg.MaxFrames, "max-frames", "n", cfg.MaxFrames, "Stop after this many frames per track (0 = all)")
	rootCmd.Flags().StringVarP(&cfg.DumpDir, "dump-attachments", "o", "", "Directory to extract attachments into")
	rootCmd.Flags().Uint32Var(&cfg.TagScanRange, "tag-scan-range", cfg.TagScanRange, "Trailing bytes to scan for unreferenced tags (0 = off)")

	var quiet, noColors bool
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress output")
	rootCmd.Flags().BoolVar(&noColors, "no-colors", false, "Disable colored output")
	rootCmd.PreRun = func(cmd *cobra.Command, args []string) {
		cfg.QuietMode = quiet
		cfg.UseColors = !noColors
	}
}

// parserLogger routes the parser's diagnostics through the CLI logger
type parserLogger struct{}

func (parserLogger) Warnf(format string, args ...interface{}) {
	logger.Warningf(format, args...)
}

func (parserLogger) Infof(format string, args ...interface{}) {
	logger.Infof(format, args...)
}

func runDump() error {
	logger.SetQuietMode(cfg.QuietMode)
	logger.SetColorMode(cfg.UseColors)

	parser, err := matroska.Open(cfg.InputFile)
	if err != nil {
		return err
	}
	defer func() {
		_ = parser.Close()
	}()

	parser.SetLogger(parserLogger{})
	parser.SetTagScanRange(cfg.TagScanRange)

	if parser.Parse(cfg.InfoOnly, true) != 0 {
		return fmt.Errorf("failed to parse %s", cfg.InputFile)
	}

	printFileInfo(parser)
	printTracks(parser)
	printChapters(parser)
	printTags(parser)
	printAttachments(parser)

	if cfg.DumpDir != "" {
		if err = dumpAttachments(parser); err != nil {
			return err
		}
	}

	if cfg.InfoOnly {
		return nil
	}

	return dumpFrames(parser)
}

func printFileInfo(parser *matroska.Parser) {
	info := parser.GetFileInfo()

	logger.Highlight(fmt.Sprintf("File: %s", cfg.InputFile))
	if info.Title != "" {
		logger.Info(fmt.Sprintf("Title:       %s", info.Title))
	}
	logger.Info(fmt.Sprintf("Duration:    %.3fs", parser.GetDuration()))
	logger.Info(fmt.Sprintf("Bitrate:     %d kbps", parser.GetAvgBitrate()))
	logger.Info(fmt.Sprintf("MuxingApp:   %s", info.MuxingApp))
	logger.Info(fmt.Sprintf("WritingApp:  %s", info.WritingApp))
	if info.DateUTCValid {
		logger.Info(fmt.Sprintf("Date:        %s", info.DateUTC.Format("2006-01-02 15:04:05")))
	}
	if info.Filename != "" {
		logger.Info(fmt.Sprintf("SegmentFile: %s", info.Filename))
	}
}

func printTracks(parser *matroska.Parser) {
	tracks := parser.GetTracks()
	logger.Highlight(fmt.Sprintf("Tracks: %d", len(tracks)))

	for i := range tracks {
		track := &tracks[i]
		logger.Info(logger.Indent(1, fmt.Sprintf("#%d %s num=%d uid=%d codec=%s lang=%s name=%q",
			i, track.Type, track.Number, track.UID, track.CodecID, track.Language, track.Name)))
		if track.Type == matroska.TrackTypeAudio {
			logger.Info(logger.Indent(2, fmt.Sprintf("channels=%d freq=%.0f out-freq=%.0f bits=%d",
				track.Audio.Channels, track.Audio.SamplingFreq, track.Audio.OutputSamplingFreq, track.Audio.BitDepth)))
		}
	}
}

func printChapters(parser *matroska.Parser) {
	chapters := parser.GetChapters()
	if len(chapters) == 0 {
		return
	}

	logger.Highlight(fmt.Sprintf("Chapters: %d", len(chapters)))
	for _, chapter := range chapters {
		printChapter(chapter, 1)
	}
}

func printChapter(chapter *matroska.Chapter, depth int) {
	name := ""
	if len(chapter.Display) > 0 {
		name = chapter.Display[0].String
	}
	logger.Info(logger.Indent(depth, fmt.Sprintf("uid=%d start=%.3fs end=%.3fs %q",
		chapter.UID, float64(chapter.TimeStart)/1e9, float64(chapter.TimeEnd)/1e9, name)))
	for _, child := range chapter.Children {
		printChapter(child, depth+1)
	}
}

func printTags(parser *matroska.Parser) {
	tags := parser.GetTags()
	if len(tags) == 0 {
		return
	}

	logger.Highlight(fmt.Sprintf("Tags: %d", len(tags)))
	for _, tag := range tags {
		logger.Info(logger.Indent(1, fmt.Sprintf("target track=%d edition=%d chapter=%d attachment=%d type=%d/%s",
			tag.TargetTrackUID, tag.TargetEditionUID, tag.TargetChapterUID,
			tag.TargetAttachmentUID, tag.TargetTypeValue, tag.TargetType)))
		for _, simpleTag := range tag.SimpleTags {
			logger.Info(logger.Indent(2, fmt.Sprintf("%s=%q lang=%s", simpleTag.Name, simpleTag.Value, simpleTag.Language)))
		}
	}
}

func printAttachments(parser *matroska.Parser) {
	attachments := parser.GetAttachmentList()
	if len(attachments) == 0 {
		return
	}

	logger.Highlight(fmt.Sprintf("Attachments: %d", len(attachments)))
	for i := range attachments {
		attachment := &attachments[i]
		logger.Info(logger.Indent(1, fmt.Sprintf("%s (%s) %d bytes at %d",
			attachment.Name, attachment.MimeType, attachment.Length, attachment.Position)))
	}
}

func dumpAttachments(parser *matroska.Parser) error {
	if err := os.MkdirAll(cfg.DumpDir, 0o755); err != nil {
		return err
	}

	for i, attachment := range parser.GetAttachmentList() {
		data, err := parser.ReadAttachment(i)
		if err != nil {
			return err
		}

		name := attachment.Name
		if name == "" {
			name = fmt.Sprintf("attachment-%d", i)
		}
		target := filepath.Join(cfg.DumpDir, filepath.Base(name))
		if err = os.WriteFile(target, data, 0o644); err != nil {
			return err
		}
		logger.Success(fmt.Sprintf("extracted %s", target))
	}

	return nil
}

func dumpFrames(parser *matroska.Parser) error {
	trackIndexes := cfg.EnabledTracks
	if len(trackIndexes) == 0 {
		first := parser.GetFirstTrack(matroska.TrackTypeAudio)
		if first < 0 {
			logger.Warning("no audio track to demux; use --track to pick one")
			return nil
		}
		trackIndexes = []int{first}
	}

	for _, trackIdx := range trackIndexes {
		parser.EnableTrack(uint16(trackIdx))
	}
	parser.SetMaxQueueDepth(cfg.QueueDepth)

	if cfg.SubSong >= 0 {
		parser.SetSubSong(cfg.SubSong)
		if !parser.Seek(0, 0) {
			logger.Warning("no frames inside selected chapter")
			return nil
		}
	}

	counts := make(map[int]int, len(trackIndexes))
	progress := true
	for progress && !parser.IsEof() {
		progress = false
		for _, trackIdx := range trackIndexes {
			if cfg.MaxFrames > 0 && counts[trackIdx] >= cfg.MaxFrames {
				continue
			}

			for {
				frame := parser.ReadSingleFrame(uint16(trackIdx))
				if frame == nil {
					break
				}
				progress = true

				logger.Plain(fmt.Sprintf("track %d frame %4d: time=%.3f duration=%.3f len=%d",
					trackIdx, counts[trackIdx],
					float64(frame.Timecode)/1e9, float64(frame.Duration)/1e9,
					len(frame.Payload())))
				counts[trackIdx]++

				if cfg.MaxFrames > 0 && counts[trackIdx] >= cfg.MaxFrames {
					break
				}
			}
		}
	}

	for _, trackIdx := range trackIndexes {
		logger.Success(fmt.Sprintf("track %d: %d frames", trackIdx, counts[trackIdx]))
	}

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}
