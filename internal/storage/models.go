package storage

const (
	kindAxis        = "axis"
	kindMeasurement = "measurement"
	kindSeries      = "series"

	codecRaw  = "f64le"
	codecZlib = "f64le+zlib"

	attrObserver            = "observer"
	attrSource              = "source"
	attrState               = "state"
	attrFrequencyResolution = "frequency_resolution"
	attrTimeMinimum         = "time_minimum"
	attrVersion             = "version"

	columnTime      = "Time"
	columnFrequency = "Frequency"

	stateValue    = "preprocessed"
	schemaVersion = "1"
)

// columnData is one row of the columns table.
type columnData struct {
	Kind  string
	Name  string
	Units string
	Rows  int
	Cols  int
	Codec string
	Data  []byte
	Axis  []byte // Own time axis of a series, raw encoded
}
