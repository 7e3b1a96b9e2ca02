package mock_test

import (
	"testing"

	"github.com/Driving-Capstone/DrivingCoach-BE/backend"
	"github.com/Driving-Capstone/DrivingCoach-BE/backend/mock"
	"github.com/Driving-Capstone/DrivingCoach-BE/proto"
)

func TestRecordStore(t *testing.T) {
	backend.IntegrationTest(t, func() (proto.RecordStore, error) { return mock.NewRecordStore(), nil })
}
