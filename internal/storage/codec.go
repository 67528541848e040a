package storage

import (
	"encoding/json"
	"errors"

	"tworate/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// CurrentVersion is the version stamp new records are written with.
func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeHistory(h model.History) ([]byte, error) {
	return json.Marshal(h)
}

func DecodeHistory(data []byte) (model.History, error) {
	var history model.History
	if err := json.Unmarshal(data, &history); err != nil {
		return model.History{}, err
	}
	if err := checkVersion(history.VersionedRecord); err != nil {
		return model.History{}, err
	}
	return history, nil
}

func EncodeLagSample(s model.LagSample) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeLagSample(data []byte) (model.LagSample, error) {
	var sample model.LagSample
	if err := json.Unmarshal(data, &sample); err != nil {
		return model.LagSample{}, err
	}
	if err := checkVersion(sample.VersionedRecord); err != nil {
		return model.LagSample{}, err
	}
	return sample, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
