//go:build windows

package capture

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/go-ole/go-ole"
	"github.com/saltosystems/winrt-go/windows/graphics/capture"
	"github.com/saltosystems/winrt-go/windows/graphics/directx"
	"github.com/saltosystems/winrt-go/windows/graphics/directx/direct3d11"
	"golang.org/x/sys/windows"

	"github.com/nicolasestrem/memoire/internal/bufpool"
	"github.com/nicolasestrem/memoire/internal/merr"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procEnumDisplayMonitors = user32.NewProc("EnumDisplayMonitors")
	procGetMonitorInfoW     = user32.NewProc("GetMonitorInfoW")
)

type rect struct{ Left, Top, Right, Bottom int32 }

type monitorInfoExW struct {
	Size      uint32
	Monitor   rect
	WorkArea  rect
	Flags     uint32
	DeviceRaw [32]uint16
}

// enumerateMonitors walks the attached display outputs via the Win32
// EnumDisplayMonitors callback (not a WinRT API: monitor identity and
// geometry come from GDI, only frame acquisition uses
// Windows.Graphics.Capture), per the teacher-adjacent lazy-DLL/syscall
// idiom used for power-event handling.
func enumerateMonitors() ([]MonitorInfo, error) {
	var monitors []MonitorInfo
	var adapterIndex int

	cb := windows.NewCallback(func(hMonitor windows.Handle, hdc windows.Handle, lprc uintptr, lParam uintptr) uintptr {
		var mi monitorInfoExW
		mi.Size = uint32(unsafe.Sizeof(mi))
		ret, _, _ := procGetMonitorInfoW.Call(uintptr(hMonitor), uintptr(unsafe.Pointer(&mi)))
		if ret == 0 {
			return 1 // keep enumerating even if one monitor's info is unavailable
		}
		monitors = append(monitors, MonitorInfo{
			DeviceName:   windows.UTF16ToString(mi.DeviceRaw[:]),
			AdapterIndex: adapterIndex,
			OutputIndex:  0,
			Width:        int(mi.Monitor.Right - mi.Monitor.Left),
			Height:       int(mi.Monitor.Bottom - mi.Monitor.Top),
		})
		adapterIndex++
		return 1
	})

	ret, _, err := procEnumDisplayMonitors.Call(0, 0, cb, 0)
	if ret == 0 {
		return nil, merr.NewFatal("capture.enumerate_monitors", fmt.Errorf("EnumDisplayMonitors: %w", err))
	}
	return monitors, nil
}

// windowsDuplicator captures one monitor through a
// Direct3D11CaptureFramePool bound to a GraphicsCaptureItem created for the
// monitor's HMONITOR, per Windows.Graphics.Capture.
type windowsDuplicator struct {
	mu sync.Mutex

	info MonitorInfo

	captureItem *capture.GraphicsCaptureItem
	framePool   *capture.Direct3D11CaptureFramePool
	session     *capture.GraphicsCaptureSession
	device      *direct3d11.IDirect3DDevice

	consecutiveFailures int
	closed              bool
}

func open(info MonitorInfo) (Duplicator, error) {
	// RoInitialize is safe to call more than once per thread; a
	// CO_E_ALREADYINITIALIZED-style result here is not an error condition.
	_ = ole.RoInitialize(1 /* RO_INIT_MULTITHREADED */)

	device, err := direct3d11.CreateDirect3DDeviceForDXGIDevice()
	if err != nil {
		return nil, merr.NewCaptureLost("capture.open", fmt.Errorf("create d3d device: %w", err))
	}

	item, err := capture.CreateItemForMonitor(info.DeviceName)
	if err != nil {
		device.Release()
		return nil, merr.NewCaptureLost("capture.open", fmt.Errorf("create capture item: %w", err))
	}

	size := item.GetSize()
	pool, err := capture.NewDirect3D11CaptureFramePoolCreateFreeThreaded(
		device, directx.DirectXPixelFormatB8G8R8A8UIntNormalized, 2, size)
	if err != nil {
		item.Release()
		device.Release()
		return nil, merr.NewCaptureLost("capture.open", fmt.Errorf("create frame pool: %w", err))
	}

	session, err := pool.CreateCaptureSession(item)
	if err != nil {
		pool.Release()
		item.Release()
		device.Release()
		return nil, merr.NewCaptureLost("capture.open", fmt.Errorf("create capture session: %w", err))
	}
	if err := session.StartCapture(); err != nil {
		session.Release()
		pool.Release()
		item.Release()
		device.Release()
		return nil, merr.NewCaptureLost("capture.open", fmt.Errorf("start capture: %w", err))
	}

	return &windowsDuplicator{
		info:        info,
		captureItem: item,
		framePool:   pool,
		session:     session,
		device:      device,
	}, nil
}

func (d *windowsDuplicator) CaptureFrame(ctx context.Context, timeout time.Duration) (CapturedFrame, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return CapturedFrame{}, false, merr.NewCaptureLost("capture.capture_frame", fmt.Errorf("duplicator closed"))
	}

	deadline := time.Now().Add(timeout)
	frame, ok, err := d.framePool.TryGetNextFrame()
	for !ok && err == nil && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return CapturedFrame{}, false, merr.NewTimeout("capture.capture_frame", timeout, ctx.Err())
		case <-time.After(2 * time.Millisecond):
		}
		frame, ok, err = d.framePool.TryGetNextFrame()
	}
	if err != nil {
		d.consecutiveFailures++
		if isLostAccess(err) {
			return CapturedFrame{}, false, merr.NewCaptureLost("capture.capture_frame", err)
		}
		return CapturedFrame{}, false, merr.NewCaptureTransient("capture.capture_frame", err)
	}
	if !ok {
		return CapturedFrame{}, false, nil
	}
	defer frame.Release()

	surface := frame.Surface()
	data, width, height, rowPitch, err := surface.MapReadBGRA()
	if err != nil {
		d.consecutiveFailures++
		return CapturedFrame{}, false, merr.NewCaptureTransient("capture.capture_frame", fmt.Errorf("map surface: %w", err))
	}
	if err := ValidateFrameBuffer(data, width, height, rowPitch); err != nil {
		d.consecutiveFailures++
		return CapturedFrame{}, false, err
	}

	rgba := bgraToRGBATightlyPacked(data, width, height, rowPitch)
	d.consecutiveFailures = 0
	return CapturedFrame{Data: rgba, Width: width, Height: height, Timestamp: time.Now()}, true, nil
}

func (d *windowsDuplicator) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.session.Release()
	d.framePool.Release()
	d.captureItem.Release()
	d.device.Release()
	return nil
}

// bgraToRGBATightlyPacked converts the compositor's row-pitched BGRA
// surface into the tightly-packed RGBA layout the encoder requires. The
// returned buffer comes from bufpool; callers must return it with
// bufpool.Put once the frame has been consumed.
func bgraToRGBATightlyPacked(src []byte, width, height, rowPitch int) []byte {
	out := bufpool.Get(width * height * 4)
	for y := 0; y < height; y++ {
		srcRow := src[y*rowPitch : y*rowPitch+width*4]
		dstRow := out[y*width*4 : (y+1)*width*4]
		for x := 0; x < width; x++ {
			b := srcRow[x*4+0]
			g := srcRow[x*4+1]
			r := srcRow[x*4+2]
			a := srcRow[x*4+3]
			dstRow[x*4+0] = r
			dstRow[x*4+1] = g
			dstRow[x*4+2] = b
			dstRow[x*4+3] = a
		}
	}
	return out
}

// oleHRESULT is implemented by go-ole's *ole.OleError.
type oleHRESULT interface {
	error
	Code() uintptr
}

// DXGI_ERROR_ACCESS_LOST / DXGI_ERROR_DEVICE_REMOVED: the duplication
// endpoint must be discarded and reopened rather than retried in place.
const (
	dxgiErrorAccessLost    = 0x887A0026
	dxgiErrorDeviceRemoved = 0x887A0005
)

func isLostAccess(err error) bool {
	hr, ok := err.(oleHRESULT)
	if !ok {
		return false
	}
	code := hr.Code()
	return code == dxgiErrorAccessLost || code == dxgiErrorDeviceRemoved
}
