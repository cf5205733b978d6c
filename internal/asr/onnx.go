package asr

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var ortInitOnce sync.Once
var ortInitErr error

// sessionSet owns the three ONNX Runtime sessions a token-duration
// transducer needs: encoder, decoder (prediction network) and joiner.
type sessionSet struct {
	encoder *encoderSession
	decoder *decoderSession
	joiner  *jonerSession
}

func (s *sessionSet) Close() error {
	var firstErr error
	for _, closer := range []interface{ Close() error }{s.encoder, s.decoder, s.joiner} {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// openSessions initializes the shared ONNX Runtime environment once per
// process and opens the three graphs found in modelDir, preferring a CUDA
// execution provider and falling back to CPU when CUDA is unavailable, per
// §4.7's "inference backend is loaded dynamically".
func openSessions(modelDir string, logger *slog.Logger) (*sessionSet, error) {
	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("asr: initialize onnxruntime environment: %w", ortInitErr)
	}

	opts, err := newSessionOptions(logger)
	if err != nil {
		return nil, err
	}
	defer opts.Destroy()

	enc, err := newEncoderSession(filepath.Join(modelDir, "encoder.onnx"), opts)
	if err != nil {
		return nil, fmt.Errorf("asr: open encoder session: %w", err)
	}
	dec, err := newDecoderSession(filepath.Join(modelDir, "decoder.onnx"), opts)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("asr: open decoder session: %w", err)
	}
	joiner, err := newJonerSession(filepath.Join(modelDir, "joiner.onnx"), opts)
	if err != nil {
		enc.Close()
		dec.Close()
		return nil, fmt.Errorf("asr: open joiner session: %w", err)
	}

	return &sessionSet{encoder: enc, decoder: dec, joiner: joiner}, nil
}

// newSessionOptions builds session options with CUDA requested first; if
// appending the CUDA execution provider fails (no compatible GPU/driver),
// the options fall back to the default CPU provider and the condition is
// logged rather than treated as fatal.
func newSessionOptions(logger *slog.Logger) (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("asr: create session options: %w", err)
	}
	cudaOpts, cudaErr := ort.NewCUDAProviderOptions()
	if cudaErr != nil {
		logger.Info("asr: CUDA provider unavailable, using CPU provider", "error", cudaErr)
		return opts, nil
	}
	defer cudaOpts.Destroy()
	if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
		logger.Info("asr: appending CUDA execution provider failed, using CPU provider", "error", err)
	}
	return opts, nil
}

// encoderSession wraps the encoder graph: inputs {audio_signal, length},
// outputs {encoded, encoded_lengths}, shape [1, 1024, T_enc] channel-major.
type encoderSession struct {
	session *ort.AdvancedSession
}

func newEncoderSession(path string, opts *ort.SessionOptions) (*encoderSession, error) {
	session, err := ort.NewAdvancedSession(path,
		[]string{"audio_signal", "length"}, []string{"encoded", "encoded_lengths"},
		nil, nil, opts)
	if err != nil {
		return nil, err
	}
	return &encoderSession{session: session}, nil
}

func (e *encoderSession) Run(melFlat []float32, channels, length int) ([]float32, int, int, error) {
	inputShape := ort.NewShape(1, int64(channels), int64(length))
	inputTensor, err := ort.NewTensor(inputShape, melFlat)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("build audio_signal tensor: %w", err)
	}
	defer inputTensor.Destroy()

	lengthTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(length)})
	if err != nil {
		return nil, 0, 0, fmt.Errorf("build length tensor: %w", err)
	}
	defer lengthTensor.Destroy()

	outputs, err := e.session.Run([]ort.ArbitraryTensor{inputTensor, lengthTensor})
	if err != nil {
		return nil, 0, 0, err
	}
	defer releaseAll(outputs)

	encoded, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, 0, 0, fmt.Errorf("unexpected encoder output type")
	}
	shape := encoded.GetShape()
	encChannels := int(shape[1])
	encLen := int(shape[2])

	data := make([]float32, len(encoded.GetData()))
	copy(data, encoded.GetData())
	return data, encChannels, encLen, nil
}

func (e *encoderSession) Close() error { return e.session.Destroy() }

// decoderSession wraps the prediction network: input the last emitted
// non-blank token (or the start symbol) and the carried state, outputs
// {prednet, prednet_lengths, new_state, _}.
type decoderSession struct {
	session *ort.AdvancedSession
}

func newDecoderSession(path string, opts *ort.SessionOptions) (*decoderSession, error) {
	session, err := ort.NewAdvancedSession(path,
		[]string{"targets", "target_lengths", "states"}, []string{"prednet", "prednet_lengths", "new_states"},
		nil, nil, opts)
	if err != nil {
		return nil, err
	}
	return &decoderSession{session: session}, nil
}

func (d *decoderSession) Run(token int32, state []float32) ([]float32, []float32, error) {
	targetTensor, err := ort.NewTensor(ort.NewShape(1, 1), []int32{token})
	if err != nil {
		return nil, nil, fmt.Errorf("build targets tensor: %w", err)
	}
	defer targetTensor.Destroy()

	lengthTensor, err := ort.NewTensor(ort.NewShape(1), []int64{1})
	if err != nil {
		return nil, nil, fmt.Errorf("build target_lengths tensor: %w", err)
	}
	defer lengthTensor.Destroy()

	stateData := state
	if len(stateData) == 0 {
		stateData = make([]float32, 1)
	}
	stateTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(stateData))), stateData)
	if err != nil {
		return nil, nil, fmt.Errorf("build states tensor: %w", err)
	}
	defer stateTensor.Destroy()

	outputs, err := d.session.Run([]ort.ArbitraryTensor{targetTensor, lengthTensor, stateTensor})
	if err != nil {
		return nil, nil, err
	}
	defer releaseAll(outputs)

	prednet, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("unexpected prednet output type")
	}
	newState, ok := outputs[2].(*ort.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("unexpected new_states output type")
	}

	prednetData := make([]float32, len(prednet.GetData()))
	copy(prednetData, prednet.GetData())
	stateOut := make([]float32, len(newState.GetData()))
	copy(stateOut, newState.GetData())
	return prednetData, stateOut, nil
}

func (d *decoderSession) Close() error { return d.session.Destroy() }

// jonerSession wraps the joiner graph: logits of size V+D (token logits
// concatenated with duration logits) over one (encoder frame, prednet) pair.
type jonerSession struct {
	session *ort.AdvancedSession
}

func newJonerSession(path string, opts *ort.SessionOptions) (*jonerSession, error) {
	session, err := ort.NewAdvancedSession(path,
		[]string{"encoder_outputs", "decoder_outputs"}, []string{"logits"},
		nil, nil, opts)
	if err != nil {
		return nil, err
	}
	return &jonerSession{session: session}, nil
}

func (j *jonerSession) Run(encoderFrame, prednet []float32) ([]float32, error) {
	encTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(encoderFrame)), 1), encoderFrame)
	if err != nil {
		return nil, fmt.Errorf("build encoder_outputs tensor: %w", err)
	}
	defer encTensor.Destroy()

	decTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(prednet))), prednet)
	if err != nil {
		return nil, fmt.Errorf("build decoder_outputs tensor: %w", err)
	}
	defer decTensor.Destroy()

	outputs, err := j.session.Run([]ort.ArbitraryTensor{encTensor, decTensor})
	if err != nil {
		return nil, err
	}
	defer releaseAll(outputs)

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected logits output type")
	}
	data := make([]float32, len(logits.GetData()))
	copy(data, logits.GetData())
	return data, nil
}

func (j *jonerSession) Close() error { return j.session.Destroy() }

func releaseAll(tensors []ort.ArbitraryTensor) {
	for _, t := range tensors {
		if d, ok := t.(interface{ Destroy() }); ok {
			d.Destroy()
		}
	}
}
