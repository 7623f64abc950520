package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/vorbis"
	beepwav "github.com/gopxl/beep/wav"
)

const (
	TargetSampleRate = 16000
	// 超过该时长的录音截断
	MaxDuration = 2 * time.Minute

	resampleQuality = 4
)

var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Sniff 根据文件头判断音频格式
func Sniff(data []byte) string {
	switch {
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return "wav"
	case len(data) >= 3 && string(data[:3]) == "ID3":
		return "mp3"
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	case len(data) >= 4 && string(data[:4]) == "fLaC":
		return "flac"
	case len(data) >= 4 && string(data[:4]) == "OggS":
		return "ogg"
	case len(data) >= 4 && bytes.Equal(data[:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return "webm"
	}
	return ""
}

func IsWav(data []byte) bool {
	return Sniff(data) == "wav"
}

func nopCloser(data []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(data))
}

// Decode 按文件头选择beep解码器
func Decode(data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	switch Sniff(data) {
	case "wav":
		return beepwav.Decode(bytes.NewReader(data))
	case "mp3":
		return mp3.Decode(nopCloser(data))
	case "flac":
		return flac.Decode(bytes.NewReader(data))
	case "ogg":
		return vorbis.Decode(nopCloser(data))
	}
	return nil, beep.Format{}, ErrUnsupportedFormat
}

// ToWav16kMono 转成16kHz单声道16bit的WAV
func ToWav16kMono(data []byte) ([]byte, error) {
	streamer, format, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	defer streamer.Close()

	var s beep.Streamer = streamer
	if format.SampleRate != TargetSampleRate {
		s = beep.Resample(resampleQuality, format.SampleRate, TargetSampleRate, s)
	}

	maxSamples := int(MaxDuration.Seconds()) * TargetSampleRate
	samples := make([]int, 0, TargetSampleRate)
	buf := make([][2]float64, 512)
	for len(samples) < maxSamples {
		n, ok := s.Stream(buf)
		for i := 0; i < n && len(samples) < maxSamples; i++ {
			// beep解码结果总是双声道，单声道源两路相同
			samples = append(samples, toInt16((buf[i][0]+buf[i][1])/2))
		}
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("stream audio: %w", err)
	}

	return EncodePCM16(samples, TargetSampleRate, 1)
}

func toInt16(v float64) int {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int(v * 32767)
}

// EncodePCM16 把交错的16bit采样写成WAV
func EncodePCM16(samples []int, sampleRate, channels int) ([]byte, error) {
	ws := &writeSeeker{}
	enc := wav.NewEncoder(ws, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Data:           samples,
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: channels},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return ws.buf, nil
}

// Duration WAV时长
func Duration(wavData []byte) (time.Duration, error) {
	dec := wav.NewDecoder(bytes.NewReader(wavData))
	if !dec.IsValidFile() {
		return 0, ErrUnsupportedFormat
	}
	return dec.Duration()
}

// writeSeeker 内存中的io.WriteSeeker，wav编码器结束时要回写头部
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		if end > cap(w.buf) {
			nb := make([]byte, end, end*2)
			copy(nb, w.buf)
			w.buf = nb
		} else {
			w.buf = w.buf[:end]
		}
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(w.pos) + offset
	case io.SeekEnd:
		abs = int64(len(w.buf)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	w.pos = int(abs)
	return abs, nil
}
