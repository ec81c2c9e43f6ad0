package ecu

import "strings"

// Field identifies one Frame field in the Known mask.
type Field uint32

const (
	FieldProgramVersion Field = 1 << iota
	FieldCalibVersion
	FieldInFlags
	FieldOutFlags
	FieldMAP
	FieldRPM
	FieldThrottle
	FieldInjection
	FieldAdvance
	FieldEnginePinging
	FieldPingingDelay
	FieldWaterTemp
	FieldAirTemp
	FieldBattery
	FieldLambda
	FieldIdleRegulation
	FieldIdlePeriod
	FieldAtmosPressure
	FieldAFRCorrection
	FieldSpeed
	FieldFault0
	FieldFault1
	FieldFault2
	FieldFault3
	FieldFault4
	FieldFaultFugitive

	fieldEnd

	// FieldAll is the mask of every Frame field.
	FieldAll = fieldEnd - 1
)

var fieldNames = [...]string{
	"programVersion", "calibVersion", "inFlags", "outFlags",
	"map", "rpm", "throttle", "injectionUs", "advance",
	"enginePinging", "pingingDelay", "waterTemp", "airTemp",
	"battery", "lambda", "idleRegulation", "idlePeriod",
	"atmosPressure", "afrCorrection", "speed",
	"fault0", "fault1", "fault2", "fault3", "fault4", "faultFugitive",
}

// Names returns the JSON names of the fields set in f, in declaration order.
func (f Field) Names() []string {
	var out []string
	for i, name := range fieldNames {
		if f&(1<<i) != 0 {
			out = append(out, name)
		}
	}
	return out
}

func (f Field) String() string { return strings.Join(f.Names(), "|") }

type flagName struct {
	bit  uint8
	name string
}

func names(v uint8, table []flagName) []string {
	var out []string
	for _, fl := range table {
		if v&fl.bit != 0 {
			out = append(out, fl.name)
		}
	}
	return out
}

// InFlags are the ECU digital inputs.
type InFlags uint8

const (
	InACRequest    InFlags = 0x02
	InACCompressor InFlags = 0x04
	InThrottle0    InFlags = 0x08 // throttle closed (idle contact)
	InParked       InFlags = 0x10
	InThrottle1    InFlags = 0x20 // throttle wide open
)

var inFlagNames = []flagName{
	{0x02, "AC request"},
	{0x04, "AC compressor"},
	{0x08, "throttle idle"},
	{0x10, "parked"},
	{0x20, "throttle full"},
}

func (f InFlags) Names() []string { return names(uint8(f), inFlagNames) }

// OutFlags are the ECU outputs.
type OutFlags uint8

const (
	OutPumpEnable     OutFlags = 0x01
	OutIdleRegulation OutFlags = 0x02
	OutWastegateReg   OutFlags = 0x04
	OutEGREnable      OutFlags = 0x20
	OutLambdaLoop     OutFlags = 0x40 // closed-loop lambda regulation
	OutCheckEngine    OutFlags = 0x80
)

var outFlagNames = []flagName{
	{0x01, "pump"},
	{0x02, "idle regulation"},
	{0x04, "wastegate regulation"},
	{0x20, "EGR"},
	{0x40, "lambda loop"},
	{0x80, "check engine"},
}

func (f OutFlags) Names() []string { return names(uint8(f), outFlagNames) }

// Fault0Flags are sensor circuit faults. The fugitive (intermittent)
// fault byte uses the same layout.
type Fault0Flags uint8

const (
	FaultWaterOpen  Fault0Flags = 0x01
	FaultWaterShort Fault0Flags = 0x02
	FaultAirOpen    Fault0Flags = 0x04
	FaultAirShort   Fault0Flags = 0x08
	FaultTPSLow     Fault0Flags = 0x40
	FaultTPSHigh    Fault0Flags = 0x80
)

var fault0Names = []flagName{
	{0x01, "water sensor open"},
	{0x02, "water sensor short"},
	{0x04, "air sensor open"},
	{0x08, "air sensor short"},
	{0x40, "TPS low"},
	{0x80, "TPS high"},
}

func (f Fault0Flags) Names() []string { return names(uint8(f), fault0Names) }

type Fault1Flags uint8

const (
	FaultMAP         Fault1Flags = 0x04
	FaultSpeedSensor Fault1Flags = 0x10
	FaultLambdaTemp  Fault1Flags = 0x20
	FaultLambda      Fault1Flags = 0x80
)

var fault1Names = []flagName{
	{0x04, "MAP sensor"},
	{0x10, "speed sensor"},
	{0x20, "lambda temperature"},
	{0x80, "lambda sensor"},
}

func (f Fault1Flags) Names() []string { return names(uint8(f), fault1Names) }

type Fault2Flags uint8

const (
	FaultEEPROMChecksum Fault2Flags = 0x20
	FaultProgChecksum   Fault2Flags = 0x80
)

var fault2Names = []flagName{
	{0x20, "EEPROM checksum"},
	{0x80, "program checksum"},
}

func (f Fault2Flags) Names() []string { return names(uint8(f), fault2Names) }

type Fault3Flags uint8

const FaultInjectors Fault3Flags = 0x10

var fault3Names = []flagName{{0x10, "injectors"}}

func (f Fault3Flags) Names() []string { return names(uint8(f), fault3Names) }

// Fault4Flags report actuator circuits that did not respond.
type Fault4Flags uint8

const (
	FaultPump      Fault4Flags = 0x01
	FaultWastegate Fault4Flags = 0x04
	FaultEGR       Fault4Flags = 0x08
	FaultIdleReg   Fault4Flags = 0x20
)

var fault4Names = []flagName{
	{0x01, "pump"},
	{0x04, "wastegate"},
	{0x08, "EGR"},
	{0x20, "idle regulation"},
}

func (f Fault4Flags) Names() []string { return names(uint8(f), fault4Names) }
