package ecu

// Fenix3 decodes Siemens Fenix3 frames (Renault R21 and similar).
type Fenix3 struct{}

const fenix3MinLength = 35

func (Fenix3) Name() string { return "Fenix3" }

func (Fenix3) Decode(raw []byte) (Frame, bool) {
	var f Frame
	r := frameReader{raw: raw, f: &f}

	f.ProgramVersion, _ = r.u8(FieldProgramVersion, 2)
	f.CalibVersion, _ = r.u8(FieldCalibVersion, 3)
	if b, ok := r.u8(FieldInFlags, 4); ok {
		f.InFlags = InFlags(b)
	}
	if b, ok := r.u8(FieldOutFlags, 5); ok {
		f.OutFlags = OutFlags(b)
	}
	if b, ok := r.u8(FieldMAP, 6); ok {
		f.MAP = 4 * int(b)
	}
	if p, ok := r.u16le(FieldRPM, 7); ok {
		f.RPM = periodToRPM(p)
	}
	if b, ok := r.u8(FieldThrottle, 9); ok {
		f.Throttle = rawToPercent(b)
	}
	if b, ok := r.u8(FieldFault1, 10); ok {
		f.Fault1 = Fault1Flags(b)
	}
	f.EnginePinging, _ = r.u8(FieldEnginePinging, 11)
	if v, ok := r.u16le(FieldInjection, 12); ok {
		f.InjectionUS = 2 * int(v)
	}
	if b, ok := r.u8(FieldAdvance, 14); ok {
		f.Advance = int(b)
	}
	if b, ok := r.u8(FieldFault0, 16); ok {
		f.Fault0 = Fault0Flags(b)
	}
	if b, ok := r.u8(FieldFaultFugitive, 17); ok {
		f.FaultFugitive = Fault0Flags(b)
	}
	if b, ok := r.u8(FieldFault2, 18); ok {
		f.Fault2 = Fault2Flags(b)
	}
	if b, ok := r.u8(FieldFault4, 19); ok {
		f.Fault4 = Fault4Flags(b)
	}
	if b, ok := r.u8(FieldFault3, 20); ok {
		f.Fault3 = Fault3Flags(b)
	}
	if b, ok := r.u8(FieldWaterTemp, 21); ok {
		f.WaterTemp = rawToCelsius(b)
	}
	if b, ok := r.u8(FieldAirTemp, 22); ok {
		f.AirTemp = rawToCelsius(b)
	}
	if b, ok := r.u8(FieldBattery, 23); ok {
		f.Battery = rawToVolts(b)
	}
	if b, ok := r.u8(FieldLambda, 24); ok {
		f.Lambda = 6 * float64(b)
	}
	if b, ok := r.u8(FieldIdleRegulation, 25); ok {
		f.IdleRegulation = rawToPercent(b)
	}
	if b, ok := r.u8(FieldIdlePeriod, 26); ok {
		f.IdlePeriod = int(b)
	}
	f.PingingDelay, _ = r.u8(FieldPingingDelay, 27)
	if b, ok := r.u8(FieldAtmosPressure, 28); ok {
		f.AtmosPressure = rawToAtmos(b)
	}
	f.AFRCorrection, _ = r.u8(FieldAFRCorrection, 30)
	if b, ok := r.u8(FieldSpeed, 34); ok {
		f.Speed = int(b)
	}

	return f, len(raw) >= fenix3MinLength
}

// Fenix1 decodes Siemens Fenix1 frames. This dialect has not been
// checked against a real ECU. Output flags, lambda, AFR correction and
// the third and fourth fault bytes are not transmitted.
type Fenix1 struct{}

const fenix1MinLength = 30

func (Fenix1) Name() string { return "Fenix1" }

func (Fenix1) Decode(raw []byte) (Frame, bool) {
	var f Frame
	r := frameReader{raw: raw, f: &f}

	f.ProgramVersion, _ = r.u8(FieldProgramVersion, 2)
	f.CalibVersion, _ = r.u8(FieldCalibVersion, 3)
	if b, ok := r.u8(FieldInFlags, 4); ok {
		f.InFlags = InFlags(remapBit(b, 0x02, uint8(InParked)) |
			remapBit(b, 0x04, uint8(InACRequest)) |
			remapBit(b, 0x08, uint8(InThrottle0)) |
			remapBit(b, 0x10, uint8(InThrottle1)) |
			remapBit(b, 0x20, uint8(InACCompressor)))
	}
	if b, ok := r.u8(FieldMAP, 5); ok {
		f.MAP = 4 * int(b)
	}
	if b, ok := r.u8(FieldWaterTemp, 6); ok {
		f.WaterTemp = rawToCelsius(b)
	}
	if b, ok := r.u8(FieldAirTemp, 7); ok {
		f.AirTemp = rawToCelsius(b)
	}
	if b, ok := r.u8(FieldBattery, 8); ok {
		f.Battery = rawToVolts(b)
	}
	if p, ok := r.u16le(FieldRPM, 10); ok {
		f.RPM = periodToRPM(p)
	}
	if v, ok := r.u16le(FieldInjection, 12); ok {
		f.InjectionUS = 2 * int(v)
	}
	f.EnginePinging, _ = r.u8(FieldEnginePinging, 14)
	if b, ok := r.u8(FieldAdvance, 15); ok {
		f.Advance = int(b)
	}
	if b, ok := r.u8(FieldIdleRegulation, 16); ok {
		f.IdleRegulation = rawToPercent(b)
	}
	if b, ok := r.u8(FieldFault2, 18); ok {
		f.Fault2 = Fault2Flags(b)
	}
	if b, ok := r.u8(FieldFault1, 19); ok {
		f.Fault1 = Fault1Flags(b)
	}
	if b, ok := r.u8(FieldSpeed, 20); ok {
		f.Speed = int(b)
	}
	if b, ok := r.u8(FieldIdlePeriod, 21); ok {
		f.IdlePeriod = int(b)
	}
	if b, ok := r.u8(FieldThrottle, 22); ok {
		f.Throttle = rawToPercent(b)
	}
	if b, ok := r.u8(FieldFaultFugitive, 26); ok {
		f.FaultFugitive = Fault0Flags(b)
	}
	if b, ok := r.u8(FieldFault0, 27); ok {
		f.Fault0 = Fault0Flags(b)
	}
	f.PingingDelay, _ = r.u8(FieldPingingDelay, 28)
	if b, ok := r.u8(FieldAtmosPressure, 29); ok {
		f.AtmosPressure = rawToAtmos(b)
	}

	return f, len(raw) >= fenix1MinLength
}

// Fenix52B decodes the 52-byte Fenix frames sent by the ECU of the
// Renault R21 2.0TXi. Only part of the frame is understood.
type Fenix52B struct{}

const fenix52BLength = 52

func (Fenix52B) Name() string { return "Fenix52B" }

func (Fenix52B) Decode(raw []byte) (Frame, bool) {
	var f Frame
	r := frameReader{raw: raw, f: &f}

	f.ProgramVersion, _ = r.u8(FieldProgramVersion, 2)
	f.CalibVersion, _ = r.u8(FieldCalibVersion, 3)
	if b, ok := r.u8(FieldOutFlags, 5); ok {
		f.OutFlags = OutFlags(remapBit(b, 0x80, uint8(OutLambdaLoop)))
	}
	if b, ok := r.u8(FieldInFlags, 6); ok {
		f.InFlags = InFlags(remapBit(b, 0x80, uint8(InThrottle0)) |
			remapBit(b, 0x40, uint8(InThrottle1)))
	}
	if p, ok := r.u16le(FieldRPM, 19); ok {
		f.RPM = periodToRPM(p)
	}
	if b, ok := r.u8(FieldMAP, 24); ok {
		f.MAP = 4 * int(b)
	}
	if b, ok := r.u8(FieldThrottle, 25); ok {
		f.Throttle = rawToPercent(b)
	}
	if b, ok := r.u8(FieldLambda, 26); ok {
		f.Lambda = 6 * float64(b)
	}
	if b, ok := r.u8(FieldWaterTemp, 27); ok {
		f.WaterTemp = rawToCelsius(b)
	}
	if b, ok := r.u8(FieldAirTemp, 28); ok {
		f.AirTemp = rawToCelsius(b)
	}
	if b, ok := r.u8(FieldBattery, 29); ok {
		f.Battery = rawToVolts(b)
	}
	if b, ok := r.u8(FieldSpeed, 30); ok {
		f.Speed = int(b)
	}
	f.EnginePinging, _ = r.u8(FieldEnginePinging, 31)

	return f, len(raw) == fenix52BLength
}
