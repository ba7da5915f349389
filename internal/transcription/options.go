package transcription

// UkrainianPrompt biases decoding toward Ukrainian orthography and away from
// Russian spellings of similar-sounding words.
const UkrainianPrompt = "Це українська розмовна мова. Використовуй правильну українську граматику та орфографію. " +
	"Розпізнавай українські слова точно, враховуючи особливості вимови. " +
	"Не плутай українські слова з російськими. Дотримуйся норм сучасної української мови."

// DecodeOptions is the fixed decoding configuration passed to every model call.
type DecodeOptions struct {
	Language       string
	Translate      bool
	WordTimestamps bool

	// Temperature is the only temperature tried; there is no sampling fallback.
	Temperature float32

	CompressionRatioThreshold float64 // segments above are repetitive
	LogProbThreshold          float64 // segments below are low confidence
	NoSpeechThreshold         float64 // segments above are silence

	ConditionOnPreviousText bool
	InitialPrompt           string
}

// DefaultDecodeOptions returns the decoding configuration used for Ukrainian
// voice notes.
func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{
		Language:                  "uk",
		Translate:                 false,
		WordTimestamps:            false,
		Temperature:               0.0,
		CompressionRatioThreshold: 2.0,
		LogProbThreshold:          -0.5,
		NoSpeechThreshold:         0.4,
		ConditionOnPreviousText:   true,
		InitialPrompt:             UkrainianPrompt,
	}
}
