package network

const (
	psiPerFt    = 0.4333
	metersPerFt = 0.3048
	secPerDay   = 86400.0
)

// flowPerCFS holds user flow units per cubic foot per second, indexed by FlowUnits.
var flowPerCFS = [...]float64{
	CFS:  1.0,
	GPM:  448.831,
	MGD:  0.64632,
	IMGD: 0.5382,
	AFD:  1.9837,
	LPS:  28.317,
	LPM:  1699.0,
	MLD:  2.4466,
	CMH:  101.94,
	CMD:  2446.6,
}

// Units converts between the engine's internal US customary units (feet,
// cubic feet per second, seconds) and the project's reporting units.
// Each factor is "user units per internal unit".
type Units struct {
	FlowUnits   FlowUnits
	Flow        float64
	Length      float64
	Diameter    float64
	Pressure    float64
	Velocity    float64
	Volume      float64
	Roughness   float64 // Darcy-Weisbach roughness only
	WallRate    float64 // wall reaction coefficient, length per day
	Headloss    float64 // pipe head loss per 1000 length units
	ElapsedTime float64
}

func NewUnits(flow FlowUnits, specificGravity float64) Units {
	if specificGravity <= 0 {
		specificGravity = 1
	}
	u := Units{
		FlowUnits:   flow,
		Flow:        flowPerCFS[flow],
		Headloss:    1000.0,
		ElapsedTime: 1.0,
	}
	if flow.IsSI() {
		u.Length = metersPerFt
		u.Diameter = 1000 * metersPerFt
		u.Pressure = metersPerFt * specificGravity
		u.Velocity = metersPerFt
		u.Volume = metersPerFt * metersPerFt * metersPerFt
		u.Roughness = 1000 * metersPerFt
		u.WallRate = metersPerFt * secPerDay
	} else {
		u.Length = 1.0
		u.Diameter = 12.0
		u.Pressure = psiPerFt * specificGravity
		u.Velocity = 1.0
		u.Volume = 1.0
		u.Roughness = 1000.0
		u.WallRate = secPerDay
	}
	return u
}

// BulkRate converts a per-day rate coefficient into a per-second one.
func BulkRate(perDay float64) float64 {
	return perDay / secPerDay
}
