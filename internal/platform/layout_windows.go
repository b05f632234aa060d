//go:build windows

package platform

import (
	"fmt"
	"strings"

	"github.com/dblohm7/wingoes"
	"github.com/go-ole/go-ole"
)

var (
	clsidImmersiveShell            = ole.NewGUID("{C2F03A33-21F5-47FA-B4BB-156362A2F239}")
	clsidVirtualNotificationServer = ole.NewGUID("{A501FDEC-4A09-464C-AE4E-1B9C21B84918}")
	clsidManagerInternal           = ole.NewGUID("{C5E0CDCA-7B6E-41B2-9FC4-D93975CC467B}")
	clsidPinnedApps                = ole.NewGUID("{B5A399E7-1C87-46B8-88E9-FC5747B171BD}")

	iidServiceProvider = ole.NewGUID("{6D5140C1-7436-11CE-8034-00AA006009FA}")
	iidManager         = ole.NewGUID("{A5CD92FF-29BE-454C-8D04-D82879FB3F1B}")
	iidViewCollection  = ole.NewGUID("{1841C6D7-4F9D-42C0-AF41-8747538F10E5}")
	iidNotifService    = ole.NewGUID("{0CD45E71-D927-4F15-8B0A-8FEF525337BF}")
	iidPinnedApps      = ole.NewGUID("{4CE81583-1E4C-4632-A621-07A53543148F}")
)

// layout holds the build-specific interface identities and vtable slots.
// The service changes these between Windows releases without notice.
type layout struct {
	name            string
	builds          buildRange
	iidDesktop      *ole.GUID
	iidInternal     *ole.GUID
	iidNotification *ole.GUID
	// monitorArg is set when manager-internal methods take a leading
	// HMONITOR argument.
	monitorArg bool

	desktop      desktopSlots
	internal     internalSlots
	notification notificationSlots
}

type desktopSlots struct {
	isViewVisible, getID, getName, getWallpaper int
}

type internalSlots struct {
	getCount, moveView, getCurrent, getDesktops, getAdjacent,
	switchDesktop, create, moveDesktop, remove, find,
	setName, setWallpaper, updateWallpaperAll int
}

// notificationSlots lists, in vtable order after IUnknown, which callback
// each slot maps to.
type notificationSlots []notifyMethod

type notifyMethod int

const (
	notifyCreated notifyMethod = iota
	notifyDestroyBegin
	notifyDestroyFailed
	notifyDestroyed
	notifyIsPerMonitorChanged
	notifyMoved
	notifyNameChanged
	notifyViewChanged
	notifyCurrentChanged
	notifyWallpaperChanged
)

// Builds from 22621 on reordered the notification interface and added the
// wallpaper callback; they have no layout yet and Connect rejects them.
var layouts = []*layout{
	{
		name:            "win11-22000",
		builds:          buildRange{min: 22000, max: 22621},
		iidDesktop:      ole.NewGUID("{536D3495-B208-4CC9-AE26-DE8111275BF8}"),
		iidInternal:     ole.NewGUID("{B2F925B9-5A0F-4D2E-9F4D-2B1507593C10}"),
		iidNotification: ole.NewGUID("{CD403E52-DEED-4C13-B437-B98380F2B1E8}"),
		monitorArg:      true,
		desktop: desktopSlots{
			isViewVisible: 3,
			getID:         4,
			getName:       6,
			getWallpaper:  7,
		},
		internal: internalSlots{
			getCount:           3,
			moveView:           4,
			getCurrent:         6,
			getDesktops:        8,
			getAdjacent:        9,
			switchDesktop:      10,
			create:             11,
			moveDesktop:        12,
			remove:             13,
			find:               14,
			setName:            16,
			setWallpaper:       17,
			updateWallpaperAll: 18,
		},
		notification: notificationSlots{
			notifyCreated,
			notifyDestroyBegin,
			notifyDestroyFailed,
			notifyDestroyed,
			notifyIsPerMonitorChanged,
			notifyMoved,
			notifyNameChanged,
			notifyViewChanged,
			notifyCurrentChanged,
		},
	},
}

func buildAtLeast(n uint32) bool {
	return wingoes.IsWin10BuildOrGreater(wingoes.Win10BuildConstant(n))
}

// selectLayout picks the newest layout covering the running build.
func selectLayout() (*layout, error) {
	var best *layout
	for _, l := range layouts {
		if l.builds.matches(buildAtLeast) {
			if best == nil || l.builds.min > best.builds.min {
				best = l
			}
		}
	}
	if best == nil {
		supported := make([]string, 0, len(layouts))
		for _, l := range layouts {
			supported = append(supported, l.builds.String())
		}
		return nil, fmt.Errorf("%w (supported builds: %s)", ErrUnsupportedBuild, strings.Join(supported, ", "))
	}
	return best, nil
}
